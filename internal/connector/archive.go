package connector

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Пути дескрипторов внутри архива.
const (
	raXMLPath          = "META-INF/ra.xml"
	ironJacamarXMLPath = "META-INF/ironjacamar.xml"
	jdbcDriverService  = "META-INF/services/java.sql.Driver"
)

// Archive — артефакт deployment unit: содержимое rar/jar.
//
// Разбор XML дескрипторов и сканирование аннотаций выполняются снаружи;
// Archive несёт уже извлечённые данные.
type Archive struct {
	// Name — имя архива ("mail.rar", "postgresql.jar").
	Name string `json:"name" yaml:"name"`

	// Version — версия resource adapter (опционально, semver).
	Version string `json:"version,omitempty" yaml:"version"`

	// Entries — файлы архива: путь → содержимое.
	Entries map[string]string `json:"entries,omitempty" yaml:"entries"`

	// Annotations — найденные аннотации определений ресурсов.
	Annotations []Annotation `json:"annotations,omitempty" yaml:"annotations"`

	// Descriptor — определения ресурсов из deployment дескриптора.
	Descriptor *Descriptor `json:"descriptor,omitempty" yaml:"descriptor"`
}

// Annotation — аннотация определения ресурса.
type Annotation struct {
	// Type — "ConnectionFactoryDefinition" или "AdministeredObjectDefinition".
	Type string `json:"type" yaml:"type"`

	// Attributes — атрибуты аннотации (name, interfaceName, resourceAdapter, ...).
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes"`
}

// Типы аннотаций.
const (
	AnnotationConnectionFactory  = "ConnectionFactoryDefinition"
	AnnotationAdministeredObject = "AdministeredObjectDefinition"
)

// Descriptor — определения ресурсов из дескриптора.
type Descriptor struct {
	ConnectionFactories []Definition `json:"connection_factories,omitempty" yaml:"connection_factories"`
	AdministeredObjects []Definition `json:"administered_objects,omitempty" yaml:"administered_objects"`
}

// Has проверяет наличие файла.
func (a *Archive) Has(p string) bool {
	_, ok := a.Entries[p]
	return ok
}

// IsRar проверяет, что архив — resource adapter.
func (a *Archive) IsRar() bool {
	return strings.HasSuffix(strings.ToLower(a.Name), ".rar")
}

// BaseName возвращает имя архива без расширения.
func (a *Archive) BaseName() string {
	return strings.TrimSuffix(a.Name, path.Ext(a.Name))
}

// Paths возвращает пути файлов, отфильтрованные match (отсортированные).
func (a *Archive) Paths(match func(p string) bool) []string {
	paths := make([]string, 0)
	for p := range a.Entries {
		if match == nil || match(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Lines возвращает непустые строки файла без комментариев.
func (a *Archive) Lines(p string) []string {
	content, ok := a.Entries[p]
	if !ok {
		return nil
	}
	lines := make([]string, 0)
	for _, line := range strings.Split(content, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// LoadArchive читает описание архива из YAML файла.
func LoadArchive(file string) (*Archive, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	var a Archive
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse archive %s: %w", file, err)
	}
	if strings.TrimSpace(a.Name) == "" {
		return nil, fmt.Errorf("archive %s: %w", file, ErrArchiveName)
	}
	return &a, nil
}
