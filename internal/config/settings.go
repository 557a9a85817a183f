package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	PublicHost string `mapstructure:"public_host"` // host the carrier can reach, e.g. voice.example.com
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type OpenAIConfig struct {
	APIKey                  string `mapstructure:"api_key"`
	ChatModel               string `mapstructure:"chat_model"`
	TranscribeModel         string `mapstructure:"transcribe_model"`
	TranscribeFallbackModel string `mapstructure:"transcribe_fallback_model"`
	TTSModel                string `mapstructure:"tts_model"`
	TTSVoice                string `mapstructure:"tts_voice"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	VoiceID string `mapstructure:"voice_id"`
	ModelID string `mapstructure:"model_id"`
}

type PiperConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Voice   string `mapstructure:"voice"`
}

// AudioTuning carries every empirically tuned threshold of the media path.
// The observed values work for one carrier/codec combination and should be
// re-tuned per deployment rather than trusted blindly.
type AudioTuning struct {
	// VAD / endpointing
	MinRMSFloor          float64       `mapstructure:"min_rms_floor"`
	NoiseMultiplier      float64       `mapstructure:"noise_multiplier"`
	NoiseMargin          float64       `mapstructure:"noise_margin"`
	NoiseAlpha           float64       `mapstructure:"noise_alpha"`
	CalibrationFrames    int           `mapstructure:"calibration_frames"`
	SilenceHangover      time.Duration `mapstructure:"silence_hangover"`
	FastSilenceHangover  time.Duration `mapstructure:"fast_silence_hangover"`
	FastMaxDuration      time.Duration `mapstructure:"fast_max_duration"`
	FastMaxVoicedFrames  int           `mapstructure:"fast_max_voiced_frames"`
	MinUtterance         time.Duration `mapstructure:"min_utterance"`
	MaxUtterance         time.Duration `mapstructure:"max_utterance"`
	MaxTrailingSilence   time.Duration `mapstructure:"max_trailing_silence"`

	// Playback scheduler
	PrebufferFrames  int           `mapstructure:"prebuffer_frames"`
	StreamStall      time.Duration `mapstructure:"stream_stall"`
	BargeInEnabled   bool          `mapstructure:"barge_in_enabled"`
	BargeInGrace     time.Duration `mapstructure:"barge_in_grace"`
	BargeInFrames    int           `mapstructure:"barge_in_frames"`
	BargeInRMSFactor float64       `mapstructure:"barge_in_rms_factor"`
}

type RecordingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Dir         string        `mapstructure:"dir"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

type CacheConfig struct {
	Dir            string   `mapstructure:"dir"`
	PrewarmPhrases []string `mapstructure:"prewarm_phrases"`
}

type FlowConfig struct {
	GuidedEnabled   bool `mapstructure:"guided_enabled"`
	MinParticipants int  `mapstructure:"min_participants"`
}

type DialerConfig struct {
	APIBase    string        `mapstructure:"api_base"`
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	Interval   time.Duration `mapstructure:"interval"`
}

type Settings struct {
	Env        string           `mapstructure:"env"`
	Debug      bool             `mapstructure:"debug"`
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"database"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Piper      PiperConfig      `mapstructure:"piper"`
	Audio      AudioTuning      `mapstructure:"audio"`
	Recording  RecordingConfig  `mapstructure:"recording"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Flow       FlowConfig       `mapstructure:"flow"`
	Dialer     DialerConfig     `mapstructure:"dialer"`
	LLMTimeout time.Duration    `mapstructure:"llm_timeout"`
	Language   string           `mapstructure:"language"`
}

func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	settings.ApplyDefaults()

	return &settings, nil
}

// ApplyDefaults fills every zero-valued knob with the values tuned against
// the reference carrier, so a minimal config file still yields a working call.
func (s *Settings) ApplyDefaults() {
	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.DB.Path == "" {
		s.DB.Path = "vocall.db"
	}
	if s.OpenAI.ChatModel == "" {
		s.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if s.OpenAI.TranscribeModel == "" {
		s.OpenAI.TranscribeModel = "whisper-1"
	}
	if s.OpenAI.TranscribeFallbackModel == "" {
		s.OpenAI.TranscribeFallbackModel = "gpt-4o-mini-transcribe"
	}
	if s.OpenAI.TTSModel == "" {
		s.OpenAI.TTSModel = "tts-1"
	}
	if s.OpenAI.TTSVoice == "" {
		s.OpenAI.TTSVoice = "alloy"
	}
	if s.Gemini.Model == "" {
		s.Gemini.Model = "gemini-1.5-flash"
	}
	if s.ElevenLabs.ModelID == "" {
		s.ElevenLabs.ModelID = "eleven_turbo_v2_5"
	}
	if s.Piper.BaseURL == "" {
		s.Piper.BaseURL = "http://localhost:5000"
	}
	if s.LLMTimeout == 0 {
		s.LLMTimeout = 6 * time.Second
	}
	if s.Language == "" {
		s.Language = "en"
	}
	if s.Recording.Dir == "" {
		s.Recording.Dir = "recordings"
	}
	if s.Recording.MaxDuration == 0 {
		s.Recording.MaxDuration = 10 * time.Minute
	}
	if s.Cache.Dir == "" {
		s.Cache.Dir = "ttscache"
	}
	if s.Flow.MinParticipants == 0 {
		s.Flow.MinParticipants = 15
	}
	if s.Dialer.Interval == 0 {
		s.Dialer.Interval = 5 * time.Second
	}

	a := &s.Audio
	if a.MinRMSFloor == 0 {
		a.MinRMSFloor = 120
	}
	if a.NoiseMultiplier == 0 {
		a.NoiseMultiplier = 2.0
	}
	if a.NoiseMargin == 0 {
		a.NoiseMargin = 30
	}
	if a.NoiseAlpha == 0 {
		a.NoiseAlpha = 0.05
	}
	if a.CalibrationFrames == 0 {
		a.CalibrationFrames = 10 // 200ms after listening re-enabled
	}
	if a.SilenceHangover == 0 {
		a.SilenceHangover = 900 * time.Millisecond
	}
	if a.FastSilenceHangover == 0 {
		a.FastSilenceHangover = 450 * time.Millisecond
	}
	if a.FastMaxDuration == 0 {
		a.FastMaxDuration = 1200 * time.Millisecond
	}
	if a.FastMaxVoicedFrames == 0 {
		a.FastMaxVoicedFrames = 25
	}
	if a.MinUtterance == 0 {
		a.MinUtterance = 200 * time.Millisecond
	}
	if a.MaxUtterance == 0 {
		a.MaxUtterance = 15 * time.Second
	}
	if a.MaxTrailingSilence == 0 {
		a.MaxTrailingSilence = a.SilenceHangover
	}
	if a.PrebufferFrames == 0 {
		a.PrebufferFrames = 10 // 200ms of audio before playback starts
	}
	if a.StreamStall == 0 {
		a.StreamStall = 1500 * time.Millisecond
	}
	if a.BargeInGrace == 0 {
		a.BargeInGrace = 700 * time.Millisecond
	}
	if a.BargeInFrames == 0 {
		a.BargeInFrames = 5 // 100ms of sustained speech
	}
	if a.BargeInRMSFactor == 0 {
		a.BargeInRMSFactor = 2.5
	}
}

func genEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
