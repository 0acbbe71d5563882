// Пакет model — доменные модели портала заявок на интервью.
package model

import "time"

// User — учётная запись портала.
// Хранится в таблице users; создаётся только начальным заполнением.
type User struct {
	// ID — UUID записи
	ID string
	// Username — уникальное имя пользователя
	Username string
	// PasswordHash — bcrypt-хэш пароля, пароль в открытом виде не хранится
	PasswordHash string
	// Role — роль (admin, user)
	Role string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
