package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/pipeline"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// --- STRUCTURE ---

// RaStructureProcessor помечает rar архивы.
type RaStructureProcessor struct{}

// Process реализует pipeline.Processor.
func (RaStructureProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	a := archiveOf(u)
	if a == nil || !a.IsRar() {
		return nil
	}
	pipeline.Attach(u, RarMarker, true)
	return nil
}

// StructureDriverProcessor находит JDBC драйверы в META-INF/services.
type StructureDriverProcessor struct{}

// Process реализует pipeline.Processor.
func (StructureDriverProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	a := archiveOf(u)
	if a == nil || !a.Has(jdbcDriverService) {
		return nil
	}
	if classes := a.Lines(jdbcDriverService); len(classes) > 0 {
		pipeline.Attach(u, DriverClasses, classes)
	}
	return nil
}

// --- PARSE ---

// RaDeploymentParsingProcessor фиксирует наличие ra.xml.
type RaDeploymentParsingProcessor struct{}

// Process реализует pipeline.Processor.
func (RaDeploymentParsingProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	return attachDescriptor(u, raXMLPath, RaDescriptor)
}

// IronJacamarDeploymentParsingProcessor фиксирует наличие ironjacamar.xml.
type IronJacamarDeploymentParsingProcessor struct{}

// Process реализует pipeline.Processor.
func (IronJacamarDeploymentParsingProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	return attachDescriptor(u, ironJacamarXMLPath, IronJacamarDescriptor)
}

// attachDescriptor прикрепляет путь дескриптора rar архива.
func attachDescriptor(u *pipeline.Unit, p string, key pipeline.Key[string]) error {
	if marked, _ := pipeline.Value(u, RarMarker); !marked {
		return nil
	}
	a := archiveOf(u)
	if !a.Has(p) {
		return nil
	}
	if strings.TrimSpace(a.Entries[p]) == "" {
		return fmt.Errorf("%s: %w: empty %s", a.Name, ErrInvalidDescriptor, p)
	}
	pipeline.Attach(u, key, p)
	return nil
}

// ConnectionFactoryDefinitionAnnotationProcessor собирает
// connection factories из аннотаций.
type ConnectionFactoryDefinitionAnnotationProcessor struct {
	legacySecurityAvailable bool
}

// NewConnectionFactoryDefinitionAnnotationProcessor создаёт processor.
func NewConnectionFactoryDefinitionAnnotationProcessor(legacySecurityAvailable bool) *ConnectionFactoryDefinitionAnnotationProcessor {
	return &ConnectionFactoryDefinitionAnnotationProcessor{legacySecurityAvailable: legacySecurityAvailable}
}

// Process реализует pipeline.Processor.
func (p *ConnectionFactoryDefinitionAnnotationProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	return collectAnnotations(u, AnnotationConnectionFactory, KindConnectionFactory, ConnectionFactories, p.legacySecurityAvailable)
}

// AdministeredObjectDefinitionAnnotationProcessor собирает
// administered objects из аннотаций.
type AdministeredObjectDefinitionAnnotationProcessor struct{}

// Process реализует pipeline.Processor.
func (AdministeredObjectDefinitionAnnotationProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	return collectAnnotations(u, AnnotationAdministeredObject, KindAdministeredObject, AdministeredObjects, false)
}

func collectAnnotations(u *pipeline.Unit, annotation string, kind DefinitionKind, key pipeline.Key[[]Definition], legacy bool) error {
	a := archiveOf(u)
	if a == nil {
		return nil
	}
	for _, ann := range a.Annotations {
		if ann.Type != annotation {
			continue
		}
		def := definitionFromAnnotation(kind, ann)
		if err := def.validate(legacy); err != nil {
			return fmt.Errorf("%s: %w", a.Name, err)
		}
		pipeline.Append(u, key, def)
	}
	return nil
}

// --- DEPENDENCIES ---

// RarDependencyProcessor добавляет модули JCA API в зависимости rar.
type RarDependencyProcessor struct{}

// Process реализует pipeline.Processor.
func (RarDependencyProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	if marked, _ := pipeline.Value(u, RarMarker); !marked {
		return nil
	}
	pipeline.Append(u, ModuleDependencies, "jakarta.resource.api", "org.jboss.ironjacamar.api")
	if pipeline.Has(u, IronJacamarDescriptor) {
		pipeline.Append(u, ModuleDependencies, "org.jboss.ironjacamar.impl")
	}
	return nil
}

// --- CONFIGURE_MODULE ---

// DriverManagerAdapterProcessor подключает адаптер DriverManager
// к модулям с JDBC драйверами.
type DriverManagerAdapterProcessor struct{}

// Process реализует pipeline.Processor.
func (DriverManagerAdapterProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	if classes, _ := pipeline.Value(u, DriverClasses); len(classes) == 0 {
		return nil
	}
	pipeline.Attach(u, DriverManagerAdapter, true)
	pipeline.Append(u, ModuleDependencies, "java.sql")
	return nil
}

// --- POST_MODULE ---

// RaXmlDependencyProcessor собирает resource adapters, на которые
// ссылаются определения ресурсов unit.
type RaXmlDependencyProcessor struct{}

// Process реализует pipeline.Processor.
func (RaXmlDependencyProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	a := archiveOf(u)
	if a == nil {
		return nil
	}

	self := ""
	if marked, _ := pipeline.Value(u, RarMarker); marked {
		self = a.BaseName()
	}

	seen := make(map[string]bool)
	add := func(ra string) {
		if ra == "" || ra == self || seen[ra] {
			return
		}
		seen[ra] = true
		pipeline.Append(u, RaDependencies, ra)
	}

	for _, key := range []pipeline.Key[[]Definition]{ConnectionFactories, AdministeredObjects} {
		defs, _ := pipeline.Value(u, key)
		for _, d := range defs {
			add(d.ResourceAdapter)
		}
	}
	if a.Descriptor != nil {
		for _, d := range a.Descriptor.ConnectionFactories {
			add(d.ResourceAdapter)
		}
		for _, d := range a.Descriptor.AdministeredObjects {
			add(d.ResourceAdapter)
		}
	}
	return nil
}

// ConnectionFactoryDefinitionDescriptorProcessor собирает
// connection factories из дескриптора.
type ConnectionFactoryDefinitionDescriptorProcessor struct {
	legacySecurityAvailable bool
}

// NewConnectionFactoryDefinitionDescriptorProcessor создаёт processor.
func NewConnectionFactoryDefinitionDescriptorProcessor(legacySecurityAvailable bool) *ConnectionFactoryDefinitionDescriptorProcessor {
	return &ConnectionFactoryDefinitionDescriptorProcessor{legacySecurityAvailable: legacySecurityAvailable}
}

// Process реализует pipeline.Processor.
func (p *ConnectionFactoryDefinitionDescriptorProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	a := archiveOf(u)
	if a == nil || a.Descriptor == nil {
		return nil
	}
	return collectDescriptor(u, a, a.Descriptor.ConnectionFactories, KindConnectionFactory, ConnectionFactories, p.legacySecurityAvailable)
}

// AdministeredObjectDefinitionDescriptorProcessor собирает
// administered objects из дескриптора.
type AdministeredObjectDefinitionDescriptorProcessor struct{}

// Process реализует pipeline.Processor.
func (AdministeredObjectDefinitionDescriptorProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	a := archiveOf(u)
	if a == nil || a.Descriptor == nil {
		return nil
	}
	return collectDescriptor(u, a, a.Descriptor.AdministeredObjects, KindAdministeredObject, AdministeredObjects, false)
}

func collectDescriptor(u *pipeline.Unit, a *Archive, defs []Definition, kind DefinitionKind, key pipeline.Key[[]Definition], legacy bool) error {
	for _, def := range defs {
		def.Kind = kind
		def.Source = "descriptor"
		if err := def.validate(legacy); err != nil {
			return fmt.Errorf("%s: %w", a.Name, err)
		}
		pipeline.Append(u, key, def)
	}
	return nil
}

// --- INSTALL ---

// RaNativeProcessor находит нативные библиотеки rar архива.
type RaNativeProcessor struct{}

// Process реализует pipeline.Processor.
func (RaNativeProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	if marked, _ := pipeline.Value(u, RarMarker); !marked {
		return nil
	}
	libs := archiveOf(u).Paths(func(p string) bool {
		for _, ext := range []string{".so", ".dll", ".dylib", ".jnilib"} {
			if strings.HasSuffix(p, ext) {
				return true
			}
		}
		return false
	})
	if len(libs) > 0 {
		pipeline.Attach(u, NativeLibraries, libs)
	}
	return nil
}

// ParsedRaDeploymentProcessor устанавливает сервис resource adapter.
type ParsedRaDeploymentProcessor struct{}

// Process реализует pipeline.Processor.
func (ParsedRaDeploymentProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	if marked, _ := pipeline.Value(u, RarMarker); !marked {
		return nil
	}
	a := archiveOf(u)
	name := a.BaseName()

	meta := ResourceAdapterMetadata{
		Name:    name,
		Archive: a.Name,
		Version: a.Version,
	}
	meta.Descriptor, _ = pipeline.Value(u, RaDescriptor)
	meta.IronJacamar, _ = pipeline.Value(u, IronJacamarDescriptor)
	cfs, _ := pipeline.Value(u, ConnectionFactories)
	aos, _ := pipeline.Value(u, AdministeredObjects)
	meta.Definitions = append(append(meta.Definitions, cfs...), aos...)

	ra := newResourceAdapter(meta)
	b := u.ServiceTarget().AddService(ResourceAdapterService(name), ra).
		AddDependency(container.Service(ServiceMDR), ra.MDR).
		AddDependency(container.Service(ServiceRaRepository), ra.Repository).
		AddDependency(container.Service(ServiceResourceAdapterRegistry), ra.Registry).
		Provides(ResourceAdapterCapability(name, ""))
	if a.Version != "" {
		b.Provides(ResourceAdapterCapability(name, a.Version))
	}

	deps, _ := pipeline.Value(u, RaDependencies)
	for _, dep := range deps {
		b.Requires(container.Capability(ResourceAdapterCapability(dep, "")))
	}

	if err := b.Install(); err != nil {
		return err
	}

	telemetry.FromContext(ctx).Debug("resource adapter installed", "resource_adapter", name, "dependencies", deps)
	return nil
}

// RaXmlDeploymentProcessor устанавливает сервисы определений ресурсов.
type RaXmlDeploymentProcessor struct{}

// Process реализует pipeline.Processor.
func (RaXmlDeploymentProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	for _, key := range []pipeline.Key[[]Definition]{ConnectionFactories, AdministeredObjects} {
		defs, _ := pipeline.Value(u, key)
		for _, def := range defs {
			res := newManagedResource(string(def.Kind), def.JNDIName())
			err := u.ServiceTarget().AddService(def.serviceName(), res).
				AddDependency(container.Service(ServiceManagementRepository), res.Management).
				Requires(container.Capability(ResourceAdapterCapability(def.ResourceAdapter, ""))).
				Install()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// DriverProcessor устанавливает сервисы JDBC драйверов.
type DriverProcessor struct{}

// Process реализует pipeline.Processor.
func (DriverProcessor) Process(ctx context.Context, u *pipeline.Unit) error {
	classes, _ := pipeline.Value(u, DriverClasses)
	for _, class := range classes {
		res := newManagedResource("jdbc-driver", class)
		err := u.ServiceTarget().AddService(JdbcDriverService(class), res).
			AddDependency(container.Service(ServiceManagementRepository), res.Management).
			Install()
		if err != nil {
			return err
		}
	}
	return nil
}
