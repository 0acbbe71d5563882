// Пакет artifacts — файлы портала на диске: аудиозаписи интервью
// в scratch-директории, PDF пресс-релизов и изображения слайд-шоу
// главной страницы.
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound — файл отсутствует или имя недопустимо.
var ErrNotFound = errors.New("файл не найден")

// AudioStore — хранилище аудиозаписей интервью.
type AudioStore struct {
	dir string
}

// NewAudioStore создаёт хранилище. Создаёт директорию, если её нет.
func NewAudioStore(dir string) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать scratch-директорию %s: %w", dir, err)
	}
	return &AudioStore{dir: dir}, nil
}

// AudioFilename возвращает имя файла записи: rekaman_<TOKEN>_<YYYYMMDDHHMMSS>.webm.
func AudioFilename(token string, at time.Time) string {
	return fmt.Sprintf("rekaman_%s_%s.webm", token, at.Format("20060102150405"))
}

// Save записывает аудио под именем AudioFilename(token, at).
// Повторная запись в ту же секунду заменяет файл.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *AudioStore) Save(r io.Reader, token string, at time.Time) (string, int64, error) {
	name := AudioFilename(token, at)
	fullPath := filepath.Join(s.dir, name)

	f, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка записи аудио: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return name, size, nil
}

// Delete удаляет аудиофайл. Отсутствие файла ошибкой не считается.
func (s *AudioStore) Delete(name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления аудио %s: %w", name, err)
	}
	return nil
}

// exists проверяет наличие аудиофайла.
func (s *AudioStore) exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, filepath.Base(name)))
	return err == nil
}

// Entry — файл каталога (пресс-релиз или изображение слайд-шоу).
type Entry struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// ImageExtensions — расширения изображений слайд-шоу главной страницы.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// Catalog — плоская директория файлов с заданными расширениями.
// Отсутствующая директория считается пустой.
type Catalog struct {
	dir     string
	kind    string
	exts    []string
	exclude []string
}

// NewPressLibrary создаёт каталог PDF пресс-релизов.
func NewPressLibrary(dir string) *Catalog {
	return &Catalog{dir: dir, kind: "пресс-релизов", exts: []string{".pdf"}}
}

// NewGallery создаёт каталог изображений слайд-шоу. Файлы из exclude
// (например, шапка сайта) в слайд-шоу не попадают.
func NewGallery(dir string, exclude []string) *Catalog {
	return &Catalog{dir: dir, kind: "изображений", exts: ImageExtensions, exclude: exclude}
}

// accepts — имя проходит фильтр расширений и исключений (без учёта регистра).
func (c *Catalog) accepts(name string) bool {
	for _, ex := range c.exclude {
		if strings.EqualFold(name, ex) {
			return false
		}
	}
	ext := filepath.Ext(name)
	for _, want := range c.exts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// List возвращает файлы каталога, новые первыми.
func (c *Catalog) List() ([]Entry, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", c.kind, err)
	}

	var result []Entry
	for _, e := range entries {
		if e.IsDir() || !c.accepts(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		result = append(result, Entry{
			Name:       e.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ModifiedAt.After(result[j].ModifiedAt)
	})
	return result, nil
}

// Open открывает файл каталога по имени. Имена с разделителями пути,
// выход за пределы каталога и файлы не из списка отклоняются с ErrNotFound.
// Вызывающий код обязан закрыть файл.
func (c *Catalog) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !c.accepts(name) {
		return nil, ErrNotFound
	}

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return nil, ErrNotFound
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, ErrNotFound
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}
