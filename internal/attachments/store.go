// Package attachments: граница с файловым хранилищем. Ядро чата только
// удаляет файлы удалённых сообщений; загрузка и раздача живут в отдельном сервисе.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatcore/internal/logger"
)

//go:generate mockgen -source=store.go -destination=../mocks/mock_attachments.go -package=mocks

// Store удаляет вложение по ссылке из сообщения. Удаление best-effort:
// вызывающий код логирует ошибку и продолжает.
type Store interface {
	Delete(ctx context.Context, ref string) error
}

// FilesPrefix: префикс ссылок, которые выдаёт файловый сервис.
const FilesPrefix = "/api/files/"

// DiskStore удаляет файлы из каталога загрузок. Файл может лежать как есть
// или в сжатом виде (<name>.gz), проверяются оба варианта.
type DiskStore struct {
	UploadDir string
}

func NewDiskStore(uploadDir string) *DiskStore {
	return &DiskStore{UploadDir: uploadDir}
}

// Delete принимает "/api/files/<name>" или голое имя файла. Чужие ссылки
// (http://..., data:...) игнорируются. Отсутствующий файл ошибкой не считается.
func (s *DiskStore) Delete(ctx context.Context, ref string) error {
	defer logger.DeferLogDuration("attachments.Delete", time.Now())()
	name, ok := fileName(ref)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	for _, p := range []string{filepath.Join(s.UploadDir, name), filepath.Join(s.UploadDir, name+".gz")} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("delete attachment %s: %w", ref, errors.Join(errs...))
	}
	return nil
}

func fileName(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return "", false
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, FilesPrefix) {
		return "", false
	}
	name := filepath.Base(strings.TrimPrefix(ref, FilesPrefix))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "", false
	}
	return name, true
}
