package models

// ErrorResponse is the common error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse is the common success envelope
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// GenerateTermsRequest asks the LLM to extract study terms from notes
type GenerateTermsRequest struct {
	Subject string `json:"subject"`
	Notes   string `json:"notes" validate:"required"`
}

// GenerateTermsResponse carries the extracted term list in source order
type GenerateTermsResponse struct {
	Terms []string `json:"terms"`
}

// GenerateSongRequest asks for lyrics and optionally synthesized audio.
// Exactly one of StudyNotes or ExistingLyrics must be provided.
type GenerateSongRequest struct {
	StudyNotes     string `json:"studyNotes,omitempty"`
	ExistingLyrics string `json:"existingLyrics,omitempty"`
	Genre          string `json:"genre,omitempty"`
	SkipAudio      bool   `json:"skipAudio,omitempty"`
}

// GenerateSongResponse carries the generated lyrics and, when audio was
// requested and synthesis succeeded, the hosted audio URL
type GenerateSongResponse struct {
	Lyrics   string  `json:"lyrics"`
	AudioURL *string `json:"audioUrl"`
	Genre    string  `json:"genre"`
}

// UploadAudioRequest re-hosts external provider audio in object storage
type UploadAudioRequest struct {
	AudioURL string `json:"audioUrl" validate:"required,url"`
	UserID   string `json:"userId" validate:"required,uuid4"`
	Term     string `json:"term" validate:"required"`
}

// UploadAudioResponse carries the stored public URL
type UploadAudioResponse struct {
	URL string `json:"url"`
}

// StitchAudioRequest identifies the set whose jingles should be concatenated
type StitchAudioRequest struct {
	SetID  string `json:"setId" validate:"required,uuid4"`
	UserID string `json:"userId" validate:"required,uuid4"`
}

// StitchAudioResponse reports the stitched file and how many jingles it covers
type StitchAudioResponse struct {
	URL         string `json:"url"`
	JingleCount int    `json:"jingleCount"`
}

// CreateSetRequest creates an empty study set
type CreateSetRequest struct {
	UserID  string `json:"userId" validate:"required,uuid4"`
	Subject string `json:"subject" validate:"required,min=1"`
}

// AddJingleRequest appends a jingle to a set's embedded list
type AddJingleRequest struct {
	UserID   string  `json:"userId" validate:"required,uuid4"`
	Term     string  `json:"term" validate:"required"`
	Lyrics   string  `json:"lyrics" validate:"required"`
	AudioURL *string `json:"audioUrl,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Genre    *string `json:"genre,omitempty"`
}

// SupportRequest carries a support inquiry
type SupportRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,min=1"`
	Message string `json:"message" validate:"required,min=1"`
}
