package provisioning

import (
	"context"
	"fmt"

	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/propagation"
	"github.com/idforge/idforge/pkg/telemetry"
)

// Manager is the provisioning orchestrator: every lifecycle operation runs
// the workflow step first, then derives and executes propagation tasks.
// Propagation failures never roll the workflow step back; they surface as
// per-resource statuses.
type Manager struct {
	dir      identity.Directory
	workflow Workflow
	factory  *propagation.Factory
	executor *propagation.Executor
	metrics  *telemetry.Metrics
	log      *telemetry.Logger
}

// NewManager creates a provisioning manager.
func NewManager(
	dir identity.Directory,
	workflow Workflow,
	factory *propagation.Factory,
	executor *propagation.Executor,
	metrics *telemetry.Metrics,
	log *telemetry.Logger,
) *Manager {
	return &Manager{
		dir:      dir,
		workflow: workflow,
		factory:  factory,
		executor: executor,
		metrics:  metrics,
		log:      log.NewComponentLogger("provisioning"),
	}
}

// Create stores a new entity and propagates it to its resources. The
// entity key and the per-resource statuses are returned even when a
// primary resource failed.
func (m *Manager) Create(ctx context.Context, entity identity.Any, clearPassword string, enable *bool, excluded ...string) (string, []propagation.Status, error) {
	m.metrics.ProvisioningCall("create")

	result, err := m.workflow.Create(ctx, entity, clearPassword)
	if err != nil {
		return "", nil, fmt.Errorf("create workflow: %w", err)
	}

	tasks, err := m.factory.CreateTasks(propagation.CreateRequest{
		Entity:            result.Entity,
		Password:          result.ClearPassword,
		Enable:            enable,
		PropByRes:         result.PropByRes,
		ExcludedResources: excluded,
	})
	if err != nil {
		// Tasks derived before the failure still run; their statuses
		// travel with the error.
		return result.Entity.Key(), m.run(ctx, tasks), err
	}

	statuses := m.run(ctx, tasks)
	return result.Entity.Key(), statuses, nil
}

// Update applies a patch and propagates the resulting changes.
func (m *Manager) Update(ctx context.Context, patch *identity.AnyPatch, enable *bool, excluded ...string) (string, []propagation.Status, error) {
	m.metrics.ProvisioningCall("update")

	result, err := m.workflow.Update(ctx, patch)
	if err != nil {
		return "", nil, fmt.Errorf("update workflow: %w", err)
	}

	tasks, err := m.factory.UpdateTasks(propagation.UpdateRequest{
		Entity:             result.Entity,
		Password:           result.ClearPassword,
		ChangePwd:          result.ClearPassword != "",
		Enable:             enable,
		VirPatches:         patch.VirAttrPatches(),
		PropByRes:          result.PropByRes,
		MembershipsChanged: result.MembershipsChanged,
		ExcludedResources:  excluded,
	})
	if err != nil {
		return result.Entity.Key(), m.run(ctx, tasks), err
	}

	statuses := m.run(ctx, tasks)
	return result.Entity.Key(), statuses, nil
}

// Delete propagates the removal to every resource first, then removes the
// entity canonically. Task derivation runs on the pre-removal state.
func (m *Manager) Delete(ctx context.Context, kind identity.Kind, key string, excluded ...string) ([]propagation.Status, error) {
	m.metrics.ProvisioningCall("delete")

	entity, ok := m.dir.Find(kind, key)
	if !ok {
		return nil, fmt.Errorf("%s %q not found", kind, key)
	}

	tasks, err := m.factory.DeleteTasks(propagation.DeleteRequest{
		Entity:            entity,
		ExcludedResources: excluded,
	})
	if err != nil {
		return m.run(ctx, tasks), err
	}

	statuses := m.run(ctx, tasks)

	if err := m.workflow.Delete(ctx, kind, key); err != nil {
		return statuses, fmt.Errorf("delete workflow: %w", err)
	}
	return statuses, nil
}

// Status applies a suspend, reactivate or activate transition and
// propagates the enable flag to the selected resources.
func (m *Manager) Status(ctx context.Context, patch *identity.StatusPatch) (string, []propagation.Status, error) {
	m.metrics.ProvisioningCall("status")

	result, err := m.workflow.Status(ctx, patch)
	if err != nil {
		return "", nil, fmt.Errorf("status workflow: %w", err)
	}
	user := result.Entity.(*identity.User)

	tasks, err := m.factory.StatusTasks(propagation.StatusRequest{
		User:      user,
		Enable:    patch.Enable(),
		Resources: result.PropByRes.Get(propagation.OpUpdate),
	})
	if err != nil {
		return user.Key(), m.run(ctx, tasks), err
	}

	statuses := m.run(ctx, tasks)
	return user.Key(), statuses, nil
}

// Provision pushes an entity's current state to the given resources
// without touching its assignments.
func (m *Manager) Provision(ctx context.Context, kind identity.Kind, key string, resources []string, clearPassword string) ([]propagation.Status, error) {
	m.metrics.ProvisioningCall("provision")

	entity, ok := m.dir.Find(kind, key)
	if !ok {
		return nil, fmt.Errorf("%s %q not found", kind, key)
	}

	byRes := propagation.NewByResource()
	byRes.AddAll(propagation.OpUpdate, resources)

	tasks, err := m.factory.UpdateTasks(propagation.UpdateRequest{
		Entity:    entity,
		Password:  clearPassword,
		ChangePwd: clearPassword != "",
		PropByRes: byRes,
	})
	if err != nil {
		return m.run(ctx, tasks), err
	}

	return m.run(ctx, tasks), nil
}

// Deprovision removes an entity's external objects from the given
// resources without touching its assignments.
func (m *Manager) Deprovision(ctx context.Context, kind identity.Kind, key string, resources []string) ([]propagation.Status, error) {
	m.metrics.ProvisioningCall("deprovision")

	entity, ok := m.dir.Find(kind, key)
	if !ok {
		return nil, fmt.Errorf("%s %q not found", kind, key)
	}

	byRes := propagation.NewByResource()
	byRes.AddAll(propagation.OpDelete, resources)

	tasks, err := m.factory.DeleteTasks(propagation.DeleteRequest{
		Entity:    entity,
		PropByRes: byRes,
	})
	if err != nil {
		return m.run(ctx, tasks), err
	}

	return m.run(ctx, tasks), nil
}

// run executes tasks and always returns the full status list. A primary
// resource failure is logged; the reporter has already marked every
// undispatched task as not attempted.
func (m *Manager) run(ctx context.Context, tasks []*propagation.Task) []propagation.Status {
	reporter := propagation.NewReporter()
	if err := m.executor.Execute(ctx, tasks, reporter); err != nil {
		m.log.WithError(err).Warn("propagation aborted on primary resource failure")
	}
	return reporter.Statuses()
}
