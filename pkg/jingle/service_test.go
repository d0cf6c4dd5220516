package jingle

import (
	"context"
	"errors"
	"testing"

	"github.com/noomo-ai/noomo-backend/pkg/ai/llm"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/noomo-ai/noomo-backend/pkg/music"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Message: f.response}, nil
}

func (f *fakeLLM) Complete(_ context.Context, _ string, _ ...string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeSynth struct {
	audioURL    string
	generateErr error
	downloadErr error
	data        []byte
}

func (f *fakeSynth) GenerateSong(_ context.Context, _, _ string) (string, error) {
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.audioURL, nil
}

func (f *fakeSynth) Download(_ context.Context, _ string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Upload(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func TestCleanLyrics(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "strips line numbers",
			raw:  "1. The mitochondria makes the power\n2. Every single minute, every hour",
			want: "The mitochondria makes the power\nEvery single minute, every hour",
		},
		{
			name: "strips wrapping quotes",
			raw:  "\"Osmosis moves the water through\nFrom low to high, it's nothing new\"",
			want: "Osmosis moves the water through\nFrom low to high, it's nothing new",
		},
		{
			name: "slash separated to newlines",
			raw:  "Neutrons carry no charge at all / Protons positive standing tall",
			want: "Neutrons carry no charge at all\nProtons positive standing tall",
		},
		{
			name: "drops all caps title line",
			raw:  "THE CELL SONG\nThe nucleus holds DNA\nRibosomes work night and day",
			want: "The nucleus holds DNA\nRibosomes work night and day",
		},
		{
			name: "keeps all caps single line",
			raw:  "DNA IS THE CODE OF LIFE",
			want: "DNA IS THE CODE OF LIFE",
		},
		{
			name: "removes blank lines",
			raw:  "First line\n\n\nSecond line",
			want: "First line\nSecond line",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLyrics(tt.raw))
		})
	}
}

func TestPrepareForSynthesis(t *testing.T) {
	short := "Line one\nLine two"
	prepared := PrepareForSynthesis(short)
	assert.Equal(t, "[Chorus]\nLine one\nLine two\nLine one\nLine two", prepared)

	full := "A\nB\nC\nD"
	assert.Equal(t, "[Chorus]\nA\nB\nC\nD", PrepareForSynthesis(full))
}

func TestResolveGenre(t *testing.T) {
	assert.Equal(t, "pop", ResolveGenre("pop"))
	assert.Equal(t, "lofi", ResolveGenre(" LoFi "))

	for _, in := range []string{"random", "", "polka"} {
		got := ResolveGenre(in)
		_, ok := genreStyles[got]
		assert.True(t, ok, "sampled genre %q must be in the style table", got)
	}
}

func TestExtractTerms(t *testing.T) {
	svc := NewService(&fakeLLM{response: "- Mitochondria\n1. Ribosome\n\nmitochondria\nGolgi apparatus"}, nil, nil)

	terms, err := svc.ExtractTerms(context.Background(), "Biology", "cell organelles...")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mitochondria", "Ribosome", "Golgi apparatus"}, terms)
}

func TestGenerateSongLyricsOnly(t *testing.T) {
	svc := NewService(&fakeLLM{response: "1. Gravity pulls us to the ground\n2. Nine point eight, the speed we found"}, nil, nil)

	resp, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		StudyNotes: "gravity accelerates at 9.8 m/s^2",
		Genre:      "pop",
		SkipAudio:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Gravity pulls us to the ground\nNine point eight, the speed we found", resp.Lyrics)
	assert.Nil(t, resp.AudioURL)
	assert.Equal(t, "pop", resp.Genre)
}

func TestGenerateSongRequiresInput(t *testing.T) {
	svc := NewService(&fakeLLM{response: "x"}, nil, nil)

	_, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{SkipAudio: true})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestGenerateSongWithAudio(t *testing.T) {
	synth := &fakeSynth{audioURL: "https://provider.test/raw.mp3", data: []byte("mp3")}
	uploader := &fakeUploader{url: "https://cdn.noomo.test/jingles/x.mp3"}
	svc := NewService(&fakeLLM{response: "A\nB\nC\nD"}, synth, uploader)

	resp, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		StudyNotes: "notes",
		Genre:      "rock",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.AudioURL)
	assert.Equal(t, "https://cdn.noomo.test/jingles/x.mp3", *resp.AudioURL)
}

func TestGenerateSongReusesExistingLyrics(t *testing.T) {
	svc := NewService(&fakeLLM{err: errors.New("llm must not be called")}, nil, nil)

	resp, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		ExistingLyrics: "Keep these lines\nExactly as they are",
		Genre:          "jazz",
		SkipAudio:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Keep these lines\nExactly as they are", resp.Lyrics)
}

func TestGenerateSongSynthFailureDegradesToLyrics(t *testing.T) {
	synth := &fakeSynth{generateErr: errors.New("provider down")}
	svc := NewService(&fakeLLM{response: "A\nB\nC\nD"}, synth, &fakeUploader{url: "x"})

	resp, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		StudyNotes: "notes",
		Genre:      "pop",
	})
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\nD", resp.Lyrics)
	assert.Nil(t, resp.AudioURL)
}

func TestGenerateSongUnconfiguredProviderIsHardError(t *testing.T) {
	svc := NewService(&fakeLLM{response: "A\nB\nC\nD"}, nil, nil)

	_, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		StudyNotes: "notes",
	})
	assert.ErrorIs(t, err, music.ErrNotConfigured)

	synth := &fakeSynth{generateErr: music.ErrNotConfigured}
	svc = NewService(&fakeLLM{response: "A\nB\nC\nD"}, synth, &fakeUploader{url: "x"})
	_, err = svc.GenerateSong(context.Background(), models.GenerateSongRequest{StudyNotes: "notes"})
	assert.ErrorIs(t, err, music.ErrNotConfigured)
}

func TestGenerateSongObservesProviderDurations(t *testing.T) {
	synth := &fakeSynth{audioURL: "https://provider.test/raw.mp3", data: []byte("mp3")}
	svc := NewService(&fakeLLM{response: "A\nB\nC\nD"}, synth, &fakeUploader{url: "x"})
	m := metrics.New()
	svc.SetMetrics(m)

	_, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		StudyNotes: "notes",
		Genre:      "pop",
	})
	require.NoError(t, err)

	// One histogram child per provider touched: openai for lyrics, music for synthesis
	assert.Equal(t, 2, testutil.CollectAndCount(m.ProviderCallDuration, "provider_call_duration_seconds"))
}

func TestGenerateSongUploadFailureFallsBackToProviderURL(t *testing.T) {
	synth := &fakeSynth{audioURL: "https://provider.test/raw.mp3", data: []byte("mp3")}
	svc := NewService(&fakeLLM{response: "A\nB\nC\nD"}, synth, &fakeUploader{err: errors.New("denied")})

	resp, err := svc.GenerateSong(context.Background(), models.GenerateSongRequest{
		StudyNotes: "notes",
		Genre:      "pop",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.AudioURL)
	assert.Equal(t, "https://provider.test/raw.mp3", *resp.AudioURL)
}
