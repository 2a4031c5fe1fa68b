package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/app"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/auth"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type fakeBackend struct {
	seeded    []catalog.ReferenceMedication
	actor     string
	repair    bool
	closed    bool
	triggered []string
	repairArg *bool
}

func (f *fakeBackend) SeedFromReference(ctx context.Context, ph string, refs []catalog.ReferenceMedication) (catalog.SeedReport, error) {
	p, _ := shared.PrincipalFromContext(ctx)
	f.actor = p.ActorID
	f.seeded = refs
	return catalog.SeedReport{Created: len(refs), Skipped: 0}, nil
}

func (f *fakeBackend) Reconcile(_ context.Context, ph string, repair bool) ([]inventory.Drift, error) {
	f.repair = repair
	return []inventory.Drift{{DrugID: "d-1", Cached: 4, Actual: 2, Repaired: repair}}, nil
}

func (f *fakeBackend) Trigger(_ context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	f.triggered = append(f.triggered, name+"@"+opts.PharmacyID)
	f.repairArg = opts.Repair
	return &asynq.TaskInfo{ID: "task-1", Type: name, Queue: "default"}, nil
}

func (f *fakeBackend) InspectQueue(context.Context) (QueueStats, error) {
	return QueueStats{Queue: "default", Pending: 2}, nil
}

func (f *fakeBackend) Close() error { return nil }

func testRuntime(f *fakeBackend) Runtime {
	return Runtime{
		LoadConfig: func() (*app.Config, error) {
			return &app.Config{AuthTokenSecret: "cli-secret", AuthTokenTTL: time.Hour}, nil
		},
		Backend: func(context.Context, *app.Config) (Seeder, Reconciler, func(), error) {
			return f, f, func() { f.closed = true }, nil
		},
		Jobs: func(*app.Config) JobTrigger { return f },
	}
}

func run(t *testing.T, rt Runtime, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd := NewRootCommand(rt)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIssueTokenVerifies(t *testing.T) {
	out, err := run(t, testRuntime(&fakeBackend{}), "issue-token", "--actor", "u-7", "--pharmacy", "ph-2", "--role", "cashier")
	require.NoError(t, err)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	manager, err := auth.NewManager("cli-secret", time.Hour)
	require.NoError(t, err)
	p, err := manager.Verify(body.Token)
	require.NoError(t, err)
	require.Equal(t, shared.Principal{ActorID: "u-7", PharmacyID: "ph-2", Role: shared.RoleCashier}, p)

	_, err = run(t, testRuntime(&fakeBackend{}), "issue-token", "--actor", "u-7")
	require.Error(t, err)
}

func TestSeedCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"genericName":"Paracetamol","brandNames":["Panadol"],"category":"Analgesic"}]`), 0o600))

	f := &fakeBackend{}
	out, err := run(t, testRuntime(f), "seed-catalog", "--pharmacy", "ph-1", "--file", path)
	require.NoError(t, err)
	require.Len(t, f.seeded, 1)
	require.Equal(t, "Paracetamol", f.seeded[0].GenericName)
	require.Equal(t, operatorActor, f.actor)
	require.True(t, f.closed)
	require.Contains(t, out, `"created": 1`)

	_, err = run(t, testRuntime(f), "seed-catalog", "--pharmacy", "ph-1", "--file", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestReconcileAndJobs(t *testing.T) {
	f := &fakeBackend{}
	out, err := run(t, testRuntime(f), "reconcile", "--pharmacy", "ph-1", "--repair")
	require.NoError(t, err)
	require.True(t, f.repair)
	require.Contains(t, out, `"drug_id": "d-1"`)

	_, err = run(t, testRuntime(f), "jobs", "trigger", "reorder:scan", "--pharmacy", "ph-3")
	require.NoError(t, err)
	require.Nil(t, f.repairArg)

	_, err = run(t, testRuntime(f), "jobs", "trigger", "inventory:reconcile", "--repair=false")
	require.NoError(t, err)
	require.NotNil(t, f.repairArg)
	require.False(t, *f.repairArg)
	require.Equal(t, []string{"reorder:scan@ph-3", "inventory:reconcile@"}, f.triggered)

	out, err = run(t, testRuntime(f), "jobs", "stats")
	require.NoError(t, err)
	require.Contains(t, out, `"pending": 2`)
}
