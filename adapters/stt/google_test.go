package stt

import (
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/nexalabs/nexa-server/internal/audio"
)

func TestMicrophoneConfig(t *testing.T) {
	config := MicrophoneConfig()
	if config.SampleRate != audio.InputSampleRate {
		t.Errorf("sample rate = %d, want %d", config.SampleRate, audio.InputSampleRate)
	}
	if config.Encoding != "LINEAR16" {
		t.Errorf("encoding = %q, want LINEAR16", config.Encoding)
	}
}

func TestAudioEncoding(t *testing.T) {
	cases := []struct {
		in   string
		want speechpb.RecognitionConfig_AudioEncoding
		ok   bool
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16, true},
		{"WAV", speechpb.RecognitionConfig_LINEAR16, true},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS, true},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS, true},
		{"MP3", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, false},
	}
	for _, c := range cases {
		got, err := audioEncoding(c.in)
		if c.ok && err != nil {
			t.Errorf("audioEncoding(%q) failed: %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Errorf("audioEncoding(%q) succeeded, want error", c.in)
		}
		if got != c.want {
			t.Errorf("audioEncoding(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
