package jingle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noomo-ai/noomo-backend/pkg/ai/llm"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/noomo-ai/noomo-backend/pkg/music"
	"github.com/noomo-ai/noomo-backend/pkg/storage"
)

// ErrNoInput is returned when neither notes nor existing lyrics are provided
var ErrNoInput = errors.New("study notes or existing lyrics are required")

// GenreRandom samples a style uniformly from the genre table
const GenreRandom = "random"

// genreStyles maps genre keys to the style prompt sent to the music provider
var genreStyles = map[string]string{
	"pop":       "upbeat pop, catchy melody, bright synths, radio friendly",
	"rap":       "rhythmic hip hop, punchy beat, clear vocal delivery",
	"rock":      "energetic rock, driving guitars, anthemic chorus",
	"country":   "warm country, acoustic guitar, storytelling vocal",
	"edm":       "electronic dance, four on the floor, euphoric drop",
	"jazz":      "smooth jazz, swung rhythm, playful brass",
	"lofi":      "mellow lofi beat, soft keys, relaxed vocal",
	"classical": "orchestral arrangement, gentle strings, sung melody",
}

// genreKeys is the stable sampling order for "random"
var genreKeys = []string{"pop", "rap", "rock", "country", "edm", "jazz", "lofi", "classical"}

const lyricsSystemPrompt = `You are a songwriter who turns study notes into short mnemonic jingles.
Write rhymed lyrics of 4 to 6 lines. Every fact in the lyrics must come from the
provided notes; never invent information. Keep lines short and singable. Return
only the lyrics, with one line per lyric line and no titles, labels, or numbering.`

const termsSystemPrompt = `You extract key terms from study notes. Return only the terms,
one per line, in the order they appear in the notes. No numbering, bullets, or
explanations.`

var (
	linePrefixRe = regexp.MustCompile(`(?m)^\s*\d+\s*[\.\)\:]\s*`)
	allCapsRe    = regexp.MustCompile(`^[A-Z0-9 ,'!\-:]+$`)
	bulletRe     = regexp.MustCompile(`^\s*[-*•]\s*`)
)

// Service generates lyrics and audio for study terms
type Service struct {
	llm     llm.Client
	music   music.Synthesizer
	store   storage.Uploader
	metrics *metrics.Metrics
}

// NewService creates a jingle generation service. The music synthesizer and
// uploader may be nil when audio generation is not configured.
func NewService(llmClient llm.Client, synth music.Synthesizer, store storage.Uploader) *Service {
	return &Service{
		llm:   llmClient,
		music: synth,
		store: store,
	}
}

// SetMetrics installs the Prometheus collectors
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) observeProvider(provider string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordProviderCall(provider, time.Since(start))
	}
}

// ExtractTerms asks the LLM for the key terms in the notes, in source order
func (s *Service) ExtractTerms(ctx context.Context, subject, notes string) ([]string, error) {
	prompt := fmt.Sprintf("Notes:\n%s", notes)
	if subject != "" {
		prompt = fmt.Sprintf("Subject: %s\n%s", subject, prompt)
	}

	start := time.Now()
	raw, err := s.llm.Complete(ctx, prompt, termsSystemPrompt)
	s.observeProvider("openai", start)
	if err != nil {
		return nil, fmt.Errorf("term extraction failed: %w", err)
	}

	var terms []string
	seen := map[string]bool{}
	for _, line := range strings.Split(raw, "\n") {
		term := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
		term = strings.TrimSpace(linePrefixRe.ReplaceAllString(term, ""))
		if term == "" || seen[strings.ToLower(term)] {
			continue
		}
		seen[strings.ToLower(term)] = true
		terms = append(terms, term)
	}
	return terms, nil
}

// GenerateSong produces lyrics from notes (or reuses provided lyrics) and,
// unless skipped, synthesizes and re-hosts audio. Provider failures after the
// lyrics exist degrade to a lyrics-only result instead of failing the call;
// an unconfigured provider is a hard error.
func (s *Service) GenerateSong(ctx context.Context, req models.GenerateSongRequest) (*models.GenerateSongResponse, error) {
	lyrics := strings.TrimSpace(req.ExistingLyrics)
	if lyrics == "" {
		if strings.TrimSpace(req.StudyNotes) == "" {
			return nil, ErrNoInput
		}
		start := time.Now()
		raw, err := s.llm.Complete(ctx, fmt.Sprintf("Notes:\n%s", req.StudyNotes), lyricsSystemPrompt)
		s.observeProvider("openai", start)
		if err != nil {
			return nil, fmt.Errorf("lyrics generation failed: %w", err)
		}
		lyrics = CleanLyrics(raw)
	}

	genre := ResolveGenre(req.Genre)
	resp := &models.GenerateSongResponse{
		Lyrics: lyrics,
		Genre:  genre,
	}

	if req.SkipAudio {
		return resp, nil
	}
	if s.music == nil || s.store == nil {
		return nil, music.ErrNotConfigured
	}

	audioURL, err := s.synthesize(ctx, lyrics, genre)
	if err != nil {
		if errors.Is(err, music.ErrNotConfigured) {
			return nil, err
		}
		log.Printf("⚠️  Audio synthesis failed, returning lyrics only: %v", err)
		return resp, nil
	}

	resp.AudioURL = &audioURL
	return resp, nil
}

// synthesize calls the music provider and re-hosts the result, falling back
// to the provider's own URL when the re-upload fails
func (s *Service) synthesize(ctx context.Context, lyrics, genre string) (string, error) {
	prepared := PrepareForSynthesis(lyrics)

	start := time.Now()
	providerURL, err := s.music.GenerateSong(ctx, prepared, genreStyles[genre])
	s.observeProvider("music", start)
	if err != nil {
		return "", err
	}

	data, err := s.music.Download(ctx, providerURL)
	if err != nil {
		log.Printf("⚠️  Audio download failed, using provider URL: %v", err)
		return providerURL, nil
	}

	key := fmt.Sprintf("jingles/%s.mp3", uuid.NewString())
	hosted, err := s.store.Upload(ctx, key, data, "audio/mpeg")
	if err != nil {
		log.Printf("⚠️  Audio re-upload failed, using provider URL: %v", err)
		return providerURL, nil
	}
	return hosted, nil
}

// ResolveGenre validates the genre key, sampling the style table for "random"
// or unknown values
func ResolveGenre(genre string) string {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" || genre == GenreRandom {
		return genreKeys[rand.Intn(len(genreKeys))]
	}
	if _, ok := genreStyles[genre]; !ok {
		return genreKeys[rand.Intn(len(genreKeys))]
	}
	return genre
}

// CleanLyrics normalizes raw LLM output into plain lyric lines
func CleanLyrics(raw string) string {
	text := strings.TrimSpace(raw)

	// Strip a single pair of wrapping quotes
	for _, q := range []struct{ open, close string }{
		{`"`, `"`},
		{"“", "”"},
	} {
		if strings.HasPrefix(text, q.open) && strings.HasSuffix(text, q.close) && len(text) > len(q.open)+len(q.close) {
			text = strings.TrimSpace(text[len(q.open) : len(text)-len(q.close)])
		}
	}

	text = linePrefixRe.ReplaceAllString(text, "")

	// Some models return lyrics as slash-separated segments on one line
	if !strings.Contains(text, "\n") && strings.Contains(text, " / ") {
		text = strings.ReplaceAll(text, " / ", "\n")
	}

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned = append(cleaned, line)
	}

	// Drop a leading all-caps line that looks like a title
	if len(cleaned) > 1 && len(cleaned[0]) > 3 && allCapsRe.MatchString(cleaned[0]) {
		cleaned = cleaned[1:]
	}

	return strings.Join(cleaned, "\n")
}

// PrepareForSynthesis pads short lyrics by duplication and wraps them in a
// chorus marker so the music provider produces a full-length track
func PrepareForSynthesis(lyrics string) string {
	lines := strings.Split(strings.TrimSpace(lyrics), "\n")
	if len(lines) < 4 {
		lines = append(lines, lines...)
	}
	return "[Chorus]\n" + strings.Join(lines, "\n")
}
