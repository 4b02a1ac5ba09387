package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/autocue/pkg/provider/stt"
)

func TestNew_RequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 3200) // 100ms of 16kHz mono 16-bit
	wav := encodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestComputeRMS(t *testing.T) {
	t.Parallel()

	if got := computeRMS(nil); got != 0 {
		t.Errorf("computeRMS(nil) = %f, want 0", got)
	}

	silence := make([]byte, 640)
	if got := computeRMS(silence); got != 0 {
		t.Errorf("computeRMS(silence) = %f, want 0", got)
	}

	// A constant-amplitude signal has RMS equal to that amplitude.
	loud := make([]byte, 640)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(10000)))
	}
	if got := computeRMS(loud); math.Abs(got-10000) > 1 {
		t.Errorf("computeRMS(constant 10000) = %f, want ~10000", got)
	}
}

func TestChunkDurationMs(t *testing.T) {
	t.Parallel()

	// 3200 bytes of 16kHz mono 16-bit PCM is 100ms.
	if got := chunkDurationMs(make([]byte, 3200), 16000, 1); got != 100 {
		t.Errorf("chunkDurationMs = %d, want 100", got)
	}
	if got := chunkDurationMs(nil, 0, 0); got != 0 {
		t.Errorf("chunkDurationMs with zero config = %d, want 0", got)
	}
}

func TestSession_SilenceFlushTranscribes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithSilenceThresholdMs(100))
	if err != nil {
		t.Fatal(err)
	}

	handle, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	// 200ms of loud audio followed by 200ms of silence triggers a flush.
	loud := make([]byte, 6400)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(10000)))
	}
	if err := handle.SendAudio(loud); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := handle.SendAudio(make([]byte, 6400)); err != nil {
		t.Fatalf("SendAudio silence: %v", err)
	}

	select {
	case tr := <-handle.Finals():
		if tr.Text != "hello world" {
			t.Errorf("Text = %q, want %q", tr.Text, "hello world")
		}
		if !tr.IsFinal {
			t.Error("IsFinal = false on finals channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSession_CloseFlushesPendingSpeech(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "tail end"})
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	handle, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}

	loud := make([]byte, 6400)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(10000)))
	}
	if err := handle.SendAudio(loud); err != nil {
		t.Fatal(err)
	}

	finals := handle.Finals()
	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr, ok := <-finals
	if !ok {
		t.Fatal("finals closed without the pending transcript")
	}
	if tr.Text != "tail end" {
		t.Errorf("Text = %q, want %q", tr.Text, "tail end")
	}

	if err := handle.SendAudio(loud); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}
