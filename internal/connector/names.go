package connector

import "github.com/shaiso/Deployer/internal/capability"

// SubsystemName — подсистема, под которой регистрируются processors.
const SubsystemName = "resourceadapters"

// Имена сервисов активатора.
const (
	ServiceMDR                     = "connector.ironjacamar.mdr"
	ServiceRaRepository            = "connector.ra-repository"
	ServiceNonJTADSRaRepository    = "connector.non-jta-ds.ra-repository"
	ServiceManagementRepository    = "connector.management-repository"
	ServiceResourceAdapterRegistry = "connector.resource-adapter-registry"
)

// CapabilityTransactionIntegration — capability интеграции с менеджером транзакций.
// Предоставляется подсистемой транзакций, не активатором.
const CapabilityTransactionIntegration = "org.wildfly.transactions.transaction-integration"

// Префиксы имён сервисов, устанавливаемых на каждый unit.
const (
	resourceAdapterPrefix     = "connector.ra."
	connectionFactoryPrefix   = "connector.cf."
	administeredObjectPrefix  = "connector.ao."
	jdbcDriverPrefix          = "connector.jdbc-driver."
	resourceAdapterCapability = "org.wildfly.connector.resource-adapter."
)

// ResourceAdapterService возвращает имя сервиса resource adapter.
func ResourceAdapterService(name string) string {
	return resourceAdapterPrefix + name
}

// ResourceAdapterCapability возвращает capability resource adapter.
// С непустой версией имя версионируется (name@version).
func ResourceAdapterCapability(name, version string) string {
	base := resourceAdapterCapability + name
	if version == "" {
		return base
	}
	return capability.Versioned(base, version)
}

// JdbcDriverService возвращает имя сервиса JDBC драйвера.
func JdbcDriverService(class string) string {
	return jdbcDriverPrefix + class
}

// Приоритеты processors внутри фаз.
const (
	PriorityStructureRar        = 0x0B00
	PriorityStructureJdbcDriver = 0x0C00

	PriorityParseRaDeployment             = 0x0D00
	PriorityParseIronJacamarDeployment    = 0x0E00
	PriorityParseConnectionFactoryDef     = 0x1E00
	PriorityParseAdministeredObjectDef    = 0x1E10
	PriorityDependenciesRarConfig         = 0x0300
	PriorityConfigureDriverManagerAdapter = 0x0900

	PriorityPostModuleRarServicesDeps      = 0x2000
	PriorityPostModuleConnectionFactoryDef = 0x2410
	PriorityPostModuleAdministeredObjDef   = 0x2420

	PriorityInstallRaNative        = 0x1800
	PriorityInstallRaDeployment    = 0x1801
	PriorityInstallRaXmlDeployment = 0x1802
	PriorityInstallJdbcDriver      = 0x1803
)
