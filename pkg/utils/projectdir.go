package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetProjectRoot поиск корня проекта: поднимаемся от рабочей директории, пока не найдем anchorFile
func GetProjectRoot(anchorFile string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, anchorFile)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root with %s not found", anchorFile)
		}
		dir = parent
	}
}
