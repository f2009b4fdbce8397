package connector

import (
	"fmt"
	"log/slog"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/pipeline"
)

// Config — режим развёртывания подсистемы.
type Config struct {
	// AppClient — облегчённый профиль клиента приложения:
	// зависимости ra.xml на сервисы сервера не вычисляются.
	AppClient bool

	// LegacySecurityAvailable — доступна legacy security для определений ресурсов.
	LegacySecurityAvailable bool
}

// Activator устанавливает сервисы и processors, необходимые для rar deployments.
//
// Флаги Config читаются один раз в NewActivator.
type Activator struct {
	appClient               bool
	legacySecurityAvailable bool
	mdr                     *MetadataRepository
	logger                  *slog.Logger
}

// NewActivator создаёт активатор.
func NewActivator(cfg Config, logger *slog.Logger) *Activator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activator{
		appClient:               cfg.AppClient,
		legacySecurityAvailable: cfg.LegacySecurityAvailable,
		mdr:                     NewMetadataRepository(),
		logger:                  logger,
	}
}

// MDR возвращает репозиторий метаданных, устанавливаемый ActivateServices.
func (a *Activator) MDR() *MetadataRepository {
	return a.mdr
}

// ActivateServices устанавливает базовые сервисы подсистемы.
func (a *Activator) ActivateServices(target container.ServiceTarget) error {
	if err := target.AddService(ServiceMDR, a.mdr).Install(); err != nil {
		return fmt.Errorf("activate %s: %w", ServiceMDR, err)
	}

	raRepository := NewRaRepository()
	err := target.AddService(ServiceRaRepository, raRepository).
		AddDependency(container.Service(ServiceMDR), raRepository.MDR).
		AddDependency(container.Capability(CapabilityTransactionIntegration), raRepository.TransactionIntegration).
		Install()
	if err != nil {
		return fmt.Errorf("activate %s: %w", ServiceRaRepository, err)
	}

	// Отдельный репозиторий для non-JTA datasources
	nonJTA := NewNonJTADataSourceRaRepository()
	err = target.AddService(ServiceNonJTADSRaRepository, nonJTA).
		AddDependency(container.Service(ServiceMDR), nonJTA.MDR).
		Install()
	if err != nil {
		return fmt.Errorf("activate %s: %w", ServiceNonJTADSRaRepository, err)
	}

	if err := target.AddService(ServiceManagementRepository, NewManagementRepository()).Install(); err != nil {
		return fmt.Errorf("activate %s: %w", ServiceManagementRepository, err)
	}

	err = target.AddService(ServiceResourceAdapterRegistry, NewResourceAdapterRegistry()).
		Requires(container.Service(ServiceMDR)).
		Install()
	if err != nil {
		return fmt.Errorf("activate %s: %w", ServiceResourceAdapterRegistry, err)
	}

	a.logger.Info("connector services activated")
	return nil
}

// ActivateProcessors регистрирует processors подсистемы.
func (a *Activator) ActivateProcessors(target pipeline.ProcessorTarget) error {
	type entry struct {
		phase     domain.Phase
		priority  int
		processor pipeline.Processor
	}

	entries := []entry{
		{domain.PhaseStructure, PriorityStructureRar, RaStructureProcessor{}},
		{domain.PhaseStructure, PriorityStructureJdbcDriver, StructureDriverProcessor{}},
		{domain.PhaseParse, PriorityParseRaDeployment, RaDeploymentParsingProcessor{}},
		{domain.PhaseParse, PriorityParseIronJacamarDeployment, IronJacamarDeploymentParsingProcessor{}},
		{domain.PhaseParse, PriorityParseConnectionFactoryDef, NewConnectionFactoryDefinitionAnnotationProcessor(a.legacySecurityAvailable)},
		{domain.PhaseParse, PriorityParseAdministeredObjectDef, AdministeredObjectDefinitionAnnotationProcessor{}},
		{domain.PhaseDependencies, PriorityDependenciesRarConfig, RarDependencyProcessor{}},
		{domain.PhaseConfigureModule, PriorityConfigureDriverManagerAdapter, DriverManagerAdapterProcessor{}},
	}
	if !a.appClient {
		entries = append(entries, entry{domain.PhasePostModule, PriorityPostModuleRarServicesDeps, RaXmlDependencyProcessor{}})
	}
	entries = append(entries,
		entry{domain.PhasePostModule, PriorityPostModuleConnectionFactoryDef, NewConnectionFactoryDefinitionDescriptorProcessor(a.legacySecurityAvailable)},
		entry{domain.PhasePostModule, PriorityPostModuleAdministeredObjDef, AdministeredObjectDefinitionDescriptorProcessor{}},
		entry{domain.PhaseInstall, PriorityInstallRaNative, RaNativeProcessor{}},
		entry{domain.PhaseInstall, PriorityInstallRaDeployment, ParsedRaDeploymentProcessor{}},
		entry{domain.PhaseInstall, PriorityInstallRaXmlDeployment, RaXmlDeploymentProcessor{}},
		entry{domain.PhaseInstall, PriorityInstallJdbcDriver, DriverProcessor{}},
	)

	for _, e := range entries {
		if err := target.AddProcessor(SubsystemName, e.phase, e.priority, e.processor); err != nil {
			return fmt.Errorf("register processor %T: %w", e.processor, err)
		}
	}

	a.logger.Info("connector processors registered",
		"processors", len(entries),
		"appclient", a.appClient,
		"legacy_security", a.legacySecurityAvailable,
	)
	return nil
}
