package connector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/pipeline"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// env — контейнер с сервисами активатора и pipeline с его processors.
type env struct {
	c         *container.Container
	p         *pipeline.Pipeline
	activator *Activator
}

func newEnv(t *testing.T, cfg Config, withTransactions bool) *env {
	t.Helper()

	c := container.New(container.Config{Logger: telemetry.Discard()})
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background())
	})

	a := NewActivator(cfg, telemetry.Discard())
	if err := a.ActivateServices(c); err != nil {
		t.Fatalf("activate services: %v", err)
	}
	if withTransactions {
		installTransactions(t, c)
	}

	chain := pipeline.NewChain()
	if err := a.ActivateProcessors(chain); err != nil {
		t.Fatalf("activate processors: %v", err)
	}

	return &env{
		c:         c,
		p:         chain.Build(pipeline.Config{Container: c, Logger: telemetry.Discard()}),
		activator: a,
	}
}

func installTransactions(t *testing.T, c *container.Container) {
	t.Helper()
	err := c.AddService("transactions.local", LocalTransactions{}).
		Provides(CapabilityTransactionIntegration).
		Install()
	if err != nil {
		t.Fatalf("install transactions: %v", err)
	}
}

func awaitUp(t *testing.T, c *container.Container, name string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if state, err := c.AwaitState(ctx, name, domain.ServiceStateUp); err != nil {
		t.Fatalf("service %s: expected UP, got %s (%v)", name, state, err)
	}
}

func settle(t *testing.T, c *container.Container) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func stateOf(c *container.Container, name string) domain.ServiceState {
	state, _ := c.State(name)
	return state
}

func TestActivateProcessors_Order(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "server",
			cfg:  Config{},
			want: []string{
				"RaStructureProcessor",
				"StructureDriverProcessor",
				"RaDeploymentParsingProcessor",
				"IronJacamarDeploymentParsingProcessor",
				"ConnectionFactoryDefinitionAnnotationProcessor",
				"AdministeredObjectDefinitionAnnotationProcessor",
				"RarDependencyProcessor",
				"DriverManagerAdapterProcessor",
				"RaXmlDependencyProcessor",
				"ConnectionFactoryDefinitionDescriptorProcessor",
				"AdministeredObjectDefinitionDescriptorProcessor",
				"RaNativeProcessor",
				"ParsedRaDeploymentProcessor",
				"RaXmlDeploymentProcessor",
				"DriverProcessor",
			},
		},
		{
			name: "appclient",
			cfg:  Config{AppClient: true},
			want: []string{
				"RaStructureProcessor",
				"StructureDriverProcessor",
				"RaDeploymentParsingProcessor",
				"IronJacamarDeploymentParsingProcessor",
				"ConnectionFactoryDefinitionAnnotationProcessor",
				"AdministeredObjectDefinitionAnnotationProcessor",
				"RarDependencyProcessor",
				"DriverManagerAdapterProcessor",
				"ConnectionFactoryDefinitionDescriptorProcessor",
				"AdministeredObjectDefinitionDescriptorProcessor",
				"RaNativeProcessor",
				"ParsedRaDeploymentProcessor",
				"RaXmlDeploymentProcessor",
				"DriverProcessor",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := pipeline.NewChain()
			if err := NewActivator(tt.cfg, telemetry.Discard()).ActivateProcessors(chain); err != nil {
				t.Fatalf("activate: %v", err)
			}

			regs := chain.Registrations()
			if len(regs) != len(tt.want) {
				t.Fatalf("expected %d processors, got %d", len(tt.want), len(regs))
			}
			for i, reg := range regs {
				if reg.Name != tt.want[i] {
					t.Errorf("processor %d: expected %s, got %s", i, tt.want[i], reg.Name)
				}
				if reg.Subsystem != SubsystemName {
					t.Errorf("processor %s: unexpected subsystem %s", reg.Name, reg.Subsystem)
				}
			}
		})
	}
}

func TestActivateServices_WaitsForTransactions(t *testing.T) {
	e := newEnv(t, Config{}, false)

	for _, name := range []string{ServiceMDR, ServiceNonJTADSRaRepository, ServiceManagementRepository, ServiceResourceAdapterRegistry} {
		awaitUp(t, e.c, name)
	}
	settle(t, e.c)

	if state := stateOf(e.c, ServiceRaRepository); state != domain.ServiceStateDown {
		t.Fatalf("ra repository should wait for transaction integration, got %s", state)
	}
	var nf *container.NotFoundError
	if err := e.c.Unresolved(ServiceRaRepository); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	installTransactions(t, e.c)
	awaitUp(t, e.c, ServiceRaRepository)

	instance, err := e.c.Instance(ServiceRaRepository)
	if err != nil {
		t.Fatalf("instance: %v", err)
	}
	repo := instance.(*RaRepository)
	if mdr := repo.MDR.Value(); mdr != e.activator.MDR() {
		t.Error("ra repository should receive the activator MDR")
	}
	if tx := repo.TransactionIntegration.Value(); tx == nil || tx.Name() != "local" {
		t.Errorf("unexpected transaction integration: %v", tx)
	}
}

func mailArchive() *Archive {
	return &Archive{
		Name:    "mail.rar",
		Version: "1.2.0",
		Entries: map[string]string{
			"META-INF/ra.xml":          "<connector/>",
			"META-INF/ironjacamar.xml": "<ironjacamar/>",
			"lib/libmail.so":           "\x7fELF",
			"mail.jar":                 "PK",
		},
		Annotations: []Annotation{
			{
				Type: AnnotationConnectionFactory,
				Attributes: map[string]string{
					"name":            "java:app/mail/Session",
					"interfaceName":   "jakarta.mail.Session",
					"resourceAdapter": "mail",
				},
			},
		},
		Descriptor: &Descriptor{
			AdministeredObjects: []Definition{
				{Name: "mail/Queue", Interface: "jakarta.jms.Queue", ResourceAdapter: "mail"},
			},
		},
	}
}

func TestDeploy_ResourceAdapter(t *testing.T) {
	e := newEnv(t, Config{}, true)

	res, err := e.p.Run(context.Background(), pipeline.NewUnit("mail.rar", mailArchive()))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	raService := ResourceAdapterService("mail")
	want := []string{raService, "connector.cf.java:app/mail/Session", "connector.ao.mail/Queue"}
	if got := res.Services(); len(got) != len(want) {
		t.Fatalf("expected services %v, got %v", want, got)
	}
	for _, name := range want {
		awaitUp(t, e.c, name)
	}

	meta, ok := e.activator.MDR().Get("mail")
	if !ok {
		t.Fatal("mail should be registered in MDR")
	}
	if meta.Descriptor != "META-INF/ra.xml" || meta.IronJacamar != "META-INF/ironjacamar.xml" {
		t.Errorf("unexpected descriptors: %+v", meta)
	}
	if len(meta.Definitions) != 2 {
		t.Errorf("expected 2 definitions, got %d", len(meta.Definitions))
	}

	instance, _ := e.c.Instance(ServiceManagementRepository)
	mgmt := instance.(*ManagementRepository)
	if kind, ok := mgmt.Kind("java:app/mail/Session"); !ok || kind != string(KindConnectionFactory) {
		t.Errorf("connection factory should be managed, got %q", kind)
	}
	if _, ok := mgmt.Kind("java:comp/env/mail/Queue"); !ok {
		t.Errorf("administered object should be managed, got %v", mgmt.Names())
	}

	if provider, err := e.c.Registry().Lookup(ResourceAdapterCapability("mail", "1.2.0")); err != nil || provider != raService {
		t.Errorf("versioned capability should be bound to %s, got %q (%v)", raService, provider, err)
	}
	if name, _, err := e.c.Registry().LookupCompatible(ResourceAdapterCapability("mail", ""), "^1.0"); err != nil || name != "org.wildfly.connector.resource-adapter.mail@1.2.0" {
		t.Errorf("compatible lookup failed: %q (%v)", name, err)
	}

	if err := e.p.Undeploy(context.Background(), res); err != nil {
		t.Fatalf("undeploy: %v", err)
	}
	if _, ok := e.activator.MDR().Get("mail"); ok {
		t.Error("mail should be unregistered after undeploy")
	}
	if len(mgmt.Names()) != 0 {
		t.Errorf("managed resources should be removed, got %v", mgmt.Names())
	}
}

func TestDeploy_JdbcDriver(t *testing.T) {
	e := newEnv(t, Config{}, true)

	archive := &Archive{
		Name: "postgresql.jar",
		Entries: map[string]string{
			"META-INF/services/java.sql.Driver": "# drivers\norg.postgresql.Driver\n\n",
		},
	}
	res, err := e.p.Run(context.Background(), pipeline.NewUnit(archive.Name, archive))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	driver := JdbcDriverService("org.postgresql.Driver")
	if got := res.Services(); len(got) != 1 || got[0] != driver {
		t.Fatalf("expected [%s], got %v", driver, got)
	}
	awaitUp(t, e.c, driver)
}

func TestDeploy_LegacySecurity(t *testing.T) {
	archive := func() *Archive {
		return &Archive{
			Name:    "secure.rar",
			Entries: map[string]string{"META-INF/ra.xml": "<connector/>"},
			Annotations: []Annotation{{
				Type: AnnotationConnectionFactory,
				Attributes: map[string]string{
					"name":            "java:app/secure/CF",
					"resourceAdapter": "secure",
					"legacySecurity":  "true",
				},
			}},
		}
	}

	t.Run("unavailable", func(t *testing.T) {
		e := newEnv(t, Config{}, true)
		_, err := e.p.Run(context.Background(), pipeline.NewUnit("secure.rar", archive()))

		if !errors.Is(err, ErrLegacySecurityUnavailable) {
			t.Fatalf("expected ErrLegacySecurityUnavailable, got %v", err)
		}
		var perr *pipeline.ProcessingError
		if !errors.As(err, &perr) || perr.Phase != domain.PhaseParse {
			t.Errorf("expected failure in PARSE, got %v", err)
		}
		if _, err := e.c.State(ResourceAdapterService("secure")); !errors.Is(err, container.ErrServiceNotFound) {
			t.Errorf("resource adapter should not be installed, got %v", err)
		}
	})

	t.Run("available", func(t *testing.T) {
		e := newEnv(t, Config{LegacySecurityAvailable: true}, true)
		if _, err := e.p.Run(context.Background(), pipeline.NewUnit("secure.rar", archive())); err != nil {
			t.Fatalf("run: %v", err)
		}
		awaitUp(t, e.c, ResourceAdapterService("secure"))
	})
}

func TestDeploy_EmptyDescriptor(t *testing.T) {
	e := newEnv(t, Config{}, true)

	archive := &Archive{Name: "broken.rar", Entries: map[string]string{"META-INF/ra.xml": "  "}}
	_, err := e.p.Run(context.Background(), pipeline.NewUnit(archive.Name, archive))
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got %v", err)
	}
}

func TestDeploy_InvalidDefinition(t *testing.T) {
	e := newEnv(t, Config{}, true)

	archive := &Archive{
		Name: "app.jar",
		Descriptor: &Descriptor{
			ConnectionFactories: []Definition{{Name: "java:app/cf"}},
		},
	}
	_, err := e.p.Run(context.Background(), pipeline.NewUnit(archive.Name, archive))

	var perr *pipeline.ProcessingError
	if !errors.As(err, &perr) || !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ProcessingError with ErrInvalidDefinition, got %v", err)
	}
	if perr.Phase != domain.PhasePostModule {
		t.Errorf("expected failure in POST_MODULE, got %s", perr.Phase)
	}
}

func TestDeploy_ResourceAdapterDependency(t *testing.T) {
	e := newEnv(t, Config{}, true)

	app := &Archive{
		Name:    "app.rar",
		Entries: map[string]string{"META-INF/ra.xml": "<connector/>"},
		Descriptor: &Descriptor{
			ConnectionFactories: []Definition{{Name: "java:app/mail", ResourceAdapter: "mail"}},
		},
	}
	if _, err := e.p.Run(context.Background(), pipeline.NewUnit(app.Name, app)); err != nil {
		t.Fatalf("run app: %v", err)
	}
	settle(t, e.c)

	appRA := ResourceAdapterService("app")
	if state := stateOf(e.c, appRA); state != domain.ServiceStateDown {
		t.Fatalf("app should wait for mail resource adapter, got %s", state)
	}

	if _, err := e.p.Run(context.Background(), pipeline.NewUnit("mail.rar", mailArchive())); err != nil {
		t.Fatalf("run mail: %v", err)
	}
	awaitUp(t, e.c, appRA)
	awaitUp(t, e.c, "connector.cf.java:app/mail")
}

func TestDeploy_AppClientSkipsRaDependencies(t *testing.T) {
	e := newEnv(t, Config{AppClient: true}, true)

	app := &Archive{
		Name:    "app.rar",
		Entries: map[string]string{"META-INF/ra.xml": "<connector/>"},
		Descriptor: &Descriptor{
			ConnectionFactories: []Definition{{Name: "java:app/mail", ResourceAdapter: "mail"}},
		},
	}
	if _, err := e.p.Run(context.Background(), pipeline.NewUnit(app.Name, app)); err != nil {
		t.Fatalf("run: %v", err)
	}
	awaitUp(t, e.c, ResourceAdapterService("app"))
}

func TestArchive_Helpers(t *testing.T) {
	a := &Archive{
		Name: "Mail.RAR",
		Entries: map[string]string{
			"b.txt": "x",
			"a.txt": "line1\n  # comment\nline2 # trailing\n",
		},
	}

	if !a.IsRar() {
		t.Error("archive name with .RAR should be a rar")
	}
	if a.BaseName() != "Mail" {
		t.Errorf("expected base name Mail, got %s", a.BaseName())
	}
	if got := a.Paths(nil); len(got) != 2 || got[0] != "a.txt" {
		t.Errorf("unexpected paths: %v", got)
	}
	if got := a.Lines("a.txt"); len(got) != 2 || got[0] != "line1" || got[1] != "line2" {
		t.Errorf("unexpected lines: %v", got)
	}
}

func TestLoadArchive(t *testing.T) {
	dir := t.TempDir()

	file := filepath.Join(dir, "mail.yaml")
	content := `name: mail.rar
version: 1.2.0
entries:
  META-INF/ra.xml: "<connector/>"
annotations:
  - type: ConnectionFactoryDefinition
    attributes:
      name: java:app/mail
`
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := LoadArchive(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a.Name != "mail.rar" || a.Version != "1.2.0" {
		t.Errorf("unexpected archive: %+v", a)
	}
	if !a.Has(raXMLPath) {
		t.Error("expected ra.xml entry")
	}
	if len(a.Annotations) != 1 || a.Annotations[0].Attributes["name"] != "java:app/mail" {
		t.Errorf("unexpected annotations: %+v", a.Annotations)
	}

	unnamed := filepath.Join(dir, "unnamed.yaml")
	if err := os.WriteFile(unnamed, []byte("version: 1.0.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArchive(unnamed); !errors.Is(err, ErrArchiveName) {
		t.Errorf("expected ErrArchiveName, got %v", err)
	}

	if _, err := LoadArchive(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
