// Пакет token — генерация публичных идентификаторов заявок.
// Токен — 8 символов из алфавита без визуально похожих символов (I, O, 0, 1).
package token

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Alphabet — допустимые символы токена. 32 символа: байт по модулю 32
// даёт равномерное распределение без отбраковки.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length — длина токена.
const Length = 8

// Generator выдаёт токены из заданного источника случайности.
type Generator struct {
	rand io.Reader
}

// NewGenerator создаёт генератор на crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorWithSource создаёт генератор с явным источником (для тестов).
func NewGeneratorWithSource(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// New возвращает новый токен. Уникальность не проверяется:
// её гарантирует ограничение UNIQUE в БД.
func (g *Generator) New() (string, error) {
	buf := make([]byte, Length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("ошибка чтения источника случайности: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// Valid проверяет, что строка соответствует формату токена.
func Valid(tok string) bool {
	if len(tok) != Length {
		return false
	}
	for i := 0; i < len(tok); i++ {
		if !inAlphabet(tok[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return c != 'I' && c != 'O'
	case c >= '2' && c <= '9':
		return true
	default:
		return false
	}
}
