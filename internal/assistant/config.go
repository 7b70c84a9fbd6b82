package assistant

import (
	"math/rand/v2"
	"time"
)

const (
	Greeting             = "Привет! Я Джарвис, ваша AI-помощница. Чем могу помочь?"
	PermissionDeniedText = "Нужно разрешить доступ к микрофону в настройках браузера"
)

// FallbackReplies are used when no provider could answer.
var FallbackReplies = []string{
	"Извините, проблемы с подключением. Попробуйте ещё раз через пару секунд.",
	"Что-то пошло не так. Перефразируйте вопрос, пожалуйста.",
	"Временный сбой. Давайте попробуем снова.",
}

type Config struct {
	SpeakDelay         time.Duration
	FallbackSpeakDelay time.Duration
	GreetingDelay      time.Duration
	SilenceTimeout     time.Duration
	NoSpeechRestart    time.Duration
	NetworkRestart     time.Duration
	EndRestart         time.Duration
	SpeechRate         string
	// Rand picks the fallback reply index in [0, n).
	Rand func(n int) int
	Now  func() time.Time
}

func DefaultConfig() Config {
	return Config{
		SpeakDelay:         300 * time.Millisecond,
		FallbackSpeakDelay: 500 * time.Millisecond,
		GreetingDelay:      500 * time.Millisecond,
		SilenceTimeout:     3 * time.Second,
		NoSpeechRestart:    500 * time.Millisecond,
		NetworkRestart:     time.Second,
		EndRestart:         300 * time.Millisecond,
		SpeechRate:         "0.95",
		Rand:               rand.IntN,
		Now:                time.Now,
	}
}
