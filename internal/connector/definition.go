package connector

import (
	"fmt"
	"strconv"
	"strings"
)

// DefinitionKind — тип определения ресурса.
type DefinitionKind string

const (
	// KindConnectionFactory — connection factory.
	KindConnectionFactory DefinitionKind = "connection-factory"

	// KindAdministeredObject — administered object.
	KindAdministeredObject DefinitionKind = "administered-object"
)

// Definition — определение ресурса (из аннотации или дескриптора).
type Definition struct {
	Kind            DefinitionKind `json:"kind" yaml:"kind"`
	Name            string         `json:"name" yaml:"name"`
	Interface       string         `json:"interface,omitempty" yaml:"interface"`
	ResourceAdapter string         `json:"resource_adapter,omitempty" yaml:"resource_adapter"`
	Source          string         `json:"source,omitempty" yaml:"source"`

	// LegacySecurity — определение использует legacy security domain.
	LegacySecurity bool `json:"legacy_security,omitempty" yaml:"legacy_security"`
}

// JNDIName возвращает имя, под которым ресурс связывается.
func (d Definition) JNDIName() string {
	if strings.HasPrefix(d.Name, "java:") {
		return d.Name
	}
	return "java:comp/env/" + d.Name
}

// validate проверяет определение.
func (d Definition) validate(legacySecurityAvailable bool) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: %s without name", ErrInvalidDefinition, d.Kind)
	}
	if strings.TrimSpace(d.ResourceAdapter) == "" {
		return fmt.Errorf("%w: %s %s: resource adapter is required", ErrInvalidDefinition, d.Kind, d.Name)
	}
	if d.LegacySecurity && !legacySecurityAvailable {
		return fmt.Errorf("%s %s: %w", d.Kind, d.Name, ErrLegacySecurityUnavailable)
	}
	return nil
}

// serviceName возвращает имя сервиса определения.
func (d Definition) serviceName() string {
	if d.Kind == KindAdministeredObject {
		return administeredObjectPrefix + d.Name
	}
	return connectionFactoryPrefix + d.Name
}

// definitionFromAnnotation строит Definition из атрибутов аннотации.
func definitionFromAnnotation(kind DefinitionKind, a Annotation) Definition {
	legacy, _ := strconv.ParseBool(a.Attributes["legacySecurity"])
	iface := a.Attributes["interfaceName"]
	if iface == "" {
		iface = a.Attributes["className"]
	}
	return Definition{
		Kind:            kind,
		Name:            a.Attributes["name"],
		Interface:       iface,
		ResourceAdapter: a.Attributes["resourceAdapter"],
		Source:          "annotation",
		LegacySecurity:  legacy,
	}
}
