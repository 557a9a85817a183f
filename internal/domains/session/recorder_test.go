package session

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/Logger"
)

func TestRecorderWritesAlignedStereoWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.wav")
	rec, err := NewRecorder(path, config.RecordingConfig{MaxDuration: time.Minute}, Logger.New(false))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	frame := make([]byte, FrameBytes)
	for i := 0; i < 5; i++ {
		rec.PushInbound(frame)
	}
	// Only one direction has audio; silence substitution must keep the
	// channels aligned regardless.
	time.Sleep(200 * time.Millisecond)
	rec.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if len(raw) <= 44 {
		t.Fatalf("recording has no audio, %d bytes", len(raw))
	}

	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		t.Fatal("not a RIFF/WAVE file")
	}
	channels := binary.LittleEndian.Uint16(raw[22:24])
	if channels != 2 {
		t.Errorf("channels = %d, want 2", channels)
	}
	rate := binary.LittleEndian.Uint32(raw[24:28])
	if rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}

	dataLen := binary.LittleEndian.Uint32(raw[40:44])
	if int(dataLen) != len(raw)-44 {
		t.Errorf("declared data length %d, file holds %d", dataLen, len(raw)-44)
	}
	riffLen := binary.LittleEndian.Uint32(raw[4:8])
	if int(riffLen) != len(raw)-8 {
		t.Errorf("declared riff length %d, file is %d-8", riffLen, len(raw))
	}
	// Stereo 16-bit frames are 4-byte aligned.
	if dataLen%4 != 0 {
		t.Errorf("data length %d is not stereo-sample aligned", dataLen)
	}
}

func TestRecorderDurationCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capped.wav")
	rec, err := NewRecorder(path, config.RecordingConfig{MaxDuration: 100 * time.Millisecond}, Logger.New(false))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	// Wait well past the cap; the recorder must have finalized itself.
	time.Sleep(500 * time.Millisecond)
	rec.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	dataLen := binary.LittleEndian.Uint32(raw[40:44])
	// 100ms at 4 bytes per sample pair and 160 pairs per tick.
	maxData := uint32((100/20 + 1) * 4 * FrameBytes)
	if dataLen > maxData {
		t.Errorf("cap ignored: %d bytes of audio, cap allows %d", dataLen, maxData)
	}
}

func TestRecorderCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.wav")
	rec, err := NewRecorder(path, config.RecordingConfig{MaxDuration: time.Minute}, Logger.New(false))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Close()
	rec.Close()
}
