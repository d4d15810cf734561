// Package config loads pipeline configuration from the environment, an
// optional .env file, and an optional YAML override, layering them:
// godotenv first, then bound defaults.
package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all tunables for the transcription pipeline core.
type Config struct {
	AppDataDir string

	ChunkDurationSec float64
	OverlapSec       float64

	RemoteHost        string
	DiarizeModel      string
	TranscribeModel   string
	MaxRetries        int
	RequestTimeoutSec int

	WhisperModelPath string
	FFmpegPath       string
	FFprobePath      string

	LogLevel string
}

// Load reads configuration from (in increasing priority) built-in defaults,
// an optional YAML file named pipeline.yaml in the working directory or its
// ./config subdirectory, .env, and process environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	v := viper.New()
	v.SetEnvPrefix("TRANSCRIBE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app_data_dir", "data")
	v.SetDefault("chunk_duration_sec", 240.0)
	v.SetDefault("overlap_sec", 1.5)
	v.SetDefault("remote_host", "api.openai.com")
	v.SetDefault("diarize_model", "gpt-4o-transcribe-diarize")
	v.SetDefault("transcribe_model", "whisper-1")
	v.SetDefault("max_retries", 5)
	v.SetDefault("request_timeout_sec", 120)
	v.SetDefault("whisper_model_path", "data/models/ggml-base.bin")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("log_level", "info")

	v.SetConfigName("pipeline")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		AppDataDir:        v.GetString("app_data_dir"),
		ChunkDurationSec:  v.GetFloat64("chunk_duration_sec"),
		OverlapSec:        v.GetFloat64("overlap_sec"),
		RemoteHost:        v.GetString("remote_host"),
		DiarizeModel:      v.GetString("diarize_model"),
		TranscribeModel:   v.GetString("transcribe_model"),
		MaxRetries:        v.GetInt("max_retries"),
		RequestTimeoutSec: v.GetInt("request_timeout_sec"),
		WhisperModelPath:  v.GetString("whisper_model_path"),
		FFmpegPath:        v.GetString("ffmpeg_path"),
		FFprobePath:       v.GetString("ffprobe_path"),
		LogLevel:          v.GetString("log_level"),
	}, nil
}
