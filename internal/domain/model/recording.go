package model

import "time"

// Recording — запись и транскрипт интервью.
// Хранится в таблице audio_recordings, не более одной на заявку.
type Recording struct {
	// ID — UUID записи
	ID string
	// RequestID — UUID заявки (уникален)
	RequestID string
	// Interviewee — имя собеседника
	Interviewee string
	// RecordedAt — время записи
	RecordedAt time.Time
	// Filename — имя аудиофайла в scratch-директории (nil без аудио)
	Filename *string
	// Transcript — текст транскрипта
	Transcript string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последней перезаписи
	UpdatedAt time.Time
}

// KeywordResult — предрассчитанная частотность ключевого слова.
type KeywordResult struct {
	Word   string
	Weight float64
}
