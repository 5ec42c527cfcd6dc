/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package gccmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/natural"
	"github.com/timelinize/geoconvert/geodata"
)

// gatherInputs expands paths into the list of files to convert. Files
// named explicitly are always included; directories are walked for
// files with an extension some input format recognizes. Hidden files
// and folders within directories are skipped. Files within each
// directory are in natural order.
func gatherInputs(paths []string) ([]string, error) {
	exts := inputExtensions()
	seen := make(map[string]struct{})
	var files []string

	add := func(file string) {
		if _, ok := seen[file]; ok {
			return
		}
		seen[file] = struct{}{}
		files = append(files, file)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(fpath string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if fpath != root && strings.HasPrefix(d.Name(), ".") {
				// skip hidden files & folders
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if geodata.HasExtension(fpath, exts) {
				found = append(found, fpath)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
		slices.SortFunc(found, func(a, b string) int {
			switch {
			case natural.Less(a, b):
				return -1
			case natural.Less(b, a):
				return 1
			}
			return 0
		})
		for _, file := range found {
			add(file)
		}
	}

	return files, nil
}

// inputExtensions returns the extensions of every input format.
func inputExtensions() []string {
	var exts []string
	for _, c := range geodata.AllCodecs() {
		if c.CanParse() {
			exts = append(exts, c.Extensions...)
		}
	}
	return exts
}

// outputNamer chooses output paths that don't collide with each other
// or with any input of the run.
type outputNamer struct {
	dir   string
	taken map[string]struct{}
}

func newOutputNamer(dir string, inputs []string) *outputNamer {
	o := &outputNamer{dir: dir, taken: make(map[string]struct{})}
	for _, in := range inputs {
		o.taken[pathKey(in)] = struct{}{}
	}
	return o
}

func (o *outputNamer) next(inputPath, suggested string) string {
	dir := o.dir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	ext := filepath.Ext(suggested)
	stem := strings.TrimSuffix(suggested, ext)

	candidate := filepath.Join(dir, suggested)
	for i := 2; ; i++ {
		if _, taken := o.taken[pathKey(candidate)]; !taken {
			break
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
	o.taken[pathKey(candidate)] = struct{}{}
	return candidate
}

// pathKey makes paths comparable whether they were given
// relative or absolute.
func pathKey(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func writeOutput(outPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
