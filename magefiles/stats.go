//go:build mage

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type pkgStats struct {
	Prod int `json:"prod"`
	Test int `json:"test"`
}

// Stats prints Go lines of code per package directory as JSON, followed by
// the totals.
func Stats() error {
	perDir := map[string]*pkgStats{}

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch {
			case path == "vendor", path == ".git", path == binaryDir, path == "magefiles":
				return filepath.SkipDir
			case strings.HasPrefix(path, "_"):
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		count, countErr := countLines(path)
		if countErr != nil {
			return nil
		}
		dir := filepath.Dir(path)
		st, ok := perDir[dir]
		if !ok {
			st = &pkgStats{}
			perDir[dir] = st
		}
		if strings.HasSuffix(path, "_test.go") {
			st.Test += count
		} else {
			st.Prod += count
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(perDir))
	for dir := range perDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var total pkgStats
	for _, dir := range dirs {
		line, err := json.Marshal(map[string]any{"dir": dir, "go_loc_prod": perDir[dir].Prod, "go_loc_test": perDir[dir].Test})
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		total.Prod += perDir[dir].Prod
		total.Test += perDir[dir].Test
	}
	fmt.Printf("total: %d production, %d test\n", total.Prod, total.Test)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
