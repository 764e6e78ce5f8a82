package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/papapumpkin/parsec/internal/conflict"
	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/optimize"
	"github.com/papapumpkin/parsec/internal/schedule"
)

func (s *Server) routes() {
	api := s.app.Group("/api")

	api.Get("/status", s.status)

	api.Post("/validate", s.validate)
	api.Post("/critical-path", s.criticalPath)
	api.Post("/leveling", s.leveling)
	api.Post("/optimize", s.optimize)
	api.Post("/schedule", s.schedule)
	api.Post("/plan", s.plan)
	api.Post("/plan/batch", s.planBatch)

	api.Post("/conflicts", s.detectConflicts)
	api.Post("/conflicts/resolve", s.resolveConflicts)

	api.Get("/baselines", s.listBaselines)
	api.Post("/baselines", s.createBaseline)
	api.Get("/baselines/:version", s.getBaseline)
	api.Delete("/baselines/:version", s.deleteBaseline)
	api.Post("/baselines/:version/compare", s.compareTask)
	api.Post("/baselines/:version/compare-project", s.compareProject)
	api.Post("/baselines/:version/restore", s.restore)
	api.Get("/tasks/:id/history", s.history)

	api.Post("/evm", s.evm)

	if s.repo != nil {
		api.Get("/projects", s.listProjects)
		api.Post("/projects/plan", s.planStoredAll)
		api.Get("/projects/:id", s.getProject)
		api.Put("/projects/:id", s.putProject)
		api.Post("/projects/:id/plan", s.planStored)
	}
}

func (s *Server) status(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version":      s.version,
		"uptime":       time.Since(s.startAt).Round(time.Second).String(),
		"repositories": s.repo != nil,
	})
}

// --- Graph operations ---

func (s *Server) validate(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	res := s.engine.ValidateDependencies(snap.Tasks, snap.AllEdges())
	return c.JSON(res)
}

func (s *Server) criticalPath(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	res, err := s.engine.CalculateCriticalPath(snap.Tasks, snap.AllEdges())
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) leveling(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	res, err := s.engine.OptimizeResourceLeveling(c.Context(), snap.Tasks, snap.AllEdges(), snap.Project.Capacity)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type optimizeRequest struct {
	schedule.Snapshot
	Goal string `json:"goal"`
}

func (s *Server) optimize(c fiber.Ctx) error {
	var req optimizeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	goal, err := optimize.ParseGoal(req.Goal)
	if err != nil {
		return err
	}
	res, err := s.engine.OptimizeScheduleWithConstraints(c.Context(), req.Tasks, req.AllEdges(), req.Constraints, goal)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) schedule(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	res, err := s.engine.Schedule(c.Context(), snap)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) plan(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	p, err := s.engine.Plan(c.Context(), snap)
	if err != nil && p != nil && errors.Is(err, schedule.ErrInvalidGraph) {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error(), "plan": p})
	}
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) planBatch(c fiber.Ctx) error {
	var snaps []schedule.Snapshot
	if err := bind(c, &snaps); err != nil {
		return err
	}
	out, err := s.engine.PlanAll(c.Context(), snaps)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// --- Conflicts ---

func (s *Server) detectConflicts(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	found := s.engine.DetectConflicts(snap.Project, snap.Tasks, snap.AllEdges())
	if found == nil {
		found = []conflict.Conflict{}
	}
	return c.JSON(fiber.Map{
		"conflicts":  found,
		"statistics": conflict.Stats(found),
		"summary":    conflict.Summary(found),
	})
}

type resolveRequest struct {
	schedule.Snapshot
	Conflicts []conflict.Conflict `json:"conflicts"`
	Strategy  conflict.Strategy   `json:"strategy"`
}

// resolveConflicts resolves the given conflicts, detecting them first when
// the request carries none.
func (s *Server) resolveConflicts(c fiber.Ctx) error {
	var req resolveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	edges := req.AllEdges()
	if req.Conflicts == nil {
		req.Conflicts = s.engine.DetectConflicts(req.Project, req.Tasks, edges)
	}
	if req.Strategy == "" {
		req.Strategy = conflict.StrategyAuto
	}
	if req.Strategy != conflict.StrategyAuto {
		return conflict.ErrUnsupportedStrategy
	}
	return c.JSON(s.engine.ResolveConflicts(req.Tasks, edges, req.Conflicts, req.Strategy))
}

// --- Earned value ---

type evmRequest struct {
	schedule.Snapshot
	Historical []evm.Historical `json:"historical"`
	Predict    bool             `json:"predict"`
}

type evmResponse struct {
	Metrics    evm.Metrics     `json:"metrics"`
	Analysis   evm.Analysis    `json:"analysis"`
	Prediction *evm.Prediction `json:"prediction,omitempty"`
}

func (s *Server) evm(c fiber.Ctx) error {
	var req evmRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p := req.Project
	m, err := s.engine.CalculateEVM(p.ID, req.Tasks, p.Budget, p.Start, p.End)
	if err != nil {
		return err
	}
	out := evmResponse{Metrics: m, Analysis: s.engine.AnalyzeEVM(m)}
	if req.Predict || len(req.Historical) > 0 {
		pred := s.engine.PredictEVM(m, req.Historical)
		out.Prediction = &pred
	}
	return c.JSON(out)
}

// --- Stored projects ---

func (s *Server) listProjects(c fiber.Ctx) error {
	ids, err := s.repo.Projects(c.Context())
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(ids)
}

func (s *Server) getProject(c fiber.Ctx) error {
	snap, err := s.repo.LoadSnapshot(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *Server) putProject(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	snap.Project.ID = c.Params("id")
	for i := range snap.Tasks {
		snap.Tasks[i].ProjectID = snap.Project.ID
	}
	if err := s.repo.SaveSnapshot(c.Context(), snap); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func applyParam(c fiber.Ctx) (bool, error) {
	raw := c.Query("apply")
	if raw == "" {
		return false, nil
	}
	apply, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fiber.NewError(http.StatusBadRequest, "apply must be a boolean")
	}
	return apply, nil
}

func (s *Server) planStored(c fiber.Ctx) error {
	apply, err := applyParam(c)
	if err != nil {
		return err
	}
	p, err := s.engine.PlanStored(c.Context(), s.repo, c.Params("id"), apply)
	if err != nil && p != nil && errors.Is(err, schedule.ErrInvalidGraph) {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error(), "plan": p})
	}
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) planStoredAll(c fiber.Ctx) error {
	apply, err := applyParam(c)
	if err != nil {
		return err
	}
	out, err := s.engine.PlanAllStored(c.Context(), s.repo, apply)
	if err != nil {
		return err
	}
	return c.JSON(out)
}
