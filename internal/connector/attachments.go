package connector

import "github.com/shaiso/Deployer/internal/pipeline"

// Вложения unit, которые пишут и читают processors подсистемы.
var (
	// RarMarker — unit является resource adapter архивом.
	RarMarker = pipeline.NewKey[bool]("connector.rar-marker")

	// RaDescriptor — путь ra.xml.
	RaDescriptor = pipeline.NewKey[string]("connector.ra-descriptor")

	// IronJacamarDescriptor — путь ironjacamar.xml.
	IronJacamarDescriptor = pipeline.NewKey[string]("connector.ironjacamar-descriptor")

	// DriverClasses — классы JDBC драйверов из META-INF/services.
	DriverClasses = pipeline.NewKey[[]string]("connector.driver-classes")

	// DriverManagerAdapter — модуль получает адаптер DriverManager.
	DriverManagerAdapter = pipeline.NewKey[bool]("connector.driver-manager-adapter")

	// ConnectionFactories — определения connection factories.
	ConnectionFactories = pipeline.NewKey[[]Definition]("connector.connection-factories")

	// AdministeredObjects — определения administered objects.
	AdministeredObjects = pipeline.NewKey[[]Definition]("connector.administered-objects")

	// ModuleDependencies — модули, добавляемые в class path unit.
	ModuleDependencies = pipeline.NewKey[[]string]("connector.module-dependencies")

	// RaDependencies — resource adapters, на которые ссылаются определения unit.
	RaDependencies = pipeline.NewKey[[]string]("connector.ra-dependencies")

	// NativeLibraries — нативные библиотеки архива.
	NativeLibraries = pipeline.NewKey[[]string]("connector.native-libraries")
)

// archiveOf возвращает архив unit или nil, если артефакт — не Archive.
func archiveOf(u *pipeline.Unit) *Archive {
	switch a := u.Artifact.(type) {
	case *Archive:
		return a
	case Archive:
		return &a
	default:
		return nil
	}
}
