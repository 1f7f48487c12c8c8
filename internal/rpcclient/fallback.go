package rpcclient

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var dotDirOrVendor = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	".venv":        true,
	"env":          true,
}

var extensionLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".sh":   "shell",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".md":   "markdown",
}

var contractDirNames = map[string]bool{
	"contracts": true,
	"specs":     true,
	"api":       true,
	"openapi":   true,
	"asyncapi":  true,
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// fallbackDecompose implements spec §4.5's PRD-decomposition fallback: the
// first non-empty line becomes the project name, slug-sanitised, returned
// as a one-service skeleton with an empty domain model.
func fallbackDecompose(prdText string) DecompositionResult {
	name := "project"
	for _, line := range strings.Split(prdText, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			name = line
			break
		}
	}
	slug := slugify(name)
	if slug == "" {
		slug = "project"
	}
	return DecompositionResult{
		ProjectName: name,
		Services: []ServiceSkeleton{
			{ServiceID: slug, Domain: "", DomainModel: map[string]any{}},
		},
		Fallback: true,
	}
}

// fallbackCodebaseMap implements spec §4.5's codebase-map fallback: walk
// the project root, skip dot-dirs and common vendor dirs, classify by
// extension into the known language table.
func fallbackCodebaseMap(projectRoot string) CodebaseMap {
	files := make(map[string][]string)

	_ = filepath.WalkDir(projectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != projectRoot && (strings.HasPrefix(name, ".") || dotDirOrVendor[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		files[lang] = append(files[lang], path)
		return nil
	})

	return CodebaseMap{Files: files, Fallback: true}
}

// fallbackContracts implements spec §4.5's contract-listing fallback: walk
// the project root under known contract directory names, collect
// JSON/YAML files, parse JSON where possible.
func fallbackContracts(projectRoot string) ContractListing {
	var contracts []Contract

	_ = filepath.WalkDir(projectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !underContractDir(projectRoot, path) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		c := Contract{Path: path}
		if ext == ".json" {
			if data, err := os.ReadFile(path); err == nil {
				var body map[string]any
				if json.Unmarshal(data, &body) == nil {
					c.Body = body
				}
			}
		}
		contracts = append(contracts, c)
		return nil
	})

	return ContractListing{Contracts: contracts, Fallback: true}
}

func underContractDir(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if contractDirNames[part] {
			return true
		}
	}
	return false
}
