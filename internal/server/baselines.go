package server

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/schedule"
)

type createBaselineRequest struct {
	schedule.Snapshot
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

func (s *Server) createBaseline(c fiber.Ctx) error {
	var req createBaselineRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := s.engine.CreateBaseline(c.Context(), req.Tasks, baseline.CreateRequest{
		ProjectID:   req.Project.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(b)
}

func (s *Server) listBaselines(c fiber.Ctx) error {
	list, err := s.engine.Baselines().List(c.Context(), c.Query("project"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []baseline.Baseline{}
	}
	return c.JSON(list)
}

func (s *Server) getBaseline(c fiber.Ctx) error {
	b, err := s.engine.Baselines().Get(c.Context(), c.Params("version"))
	if err != nil {
		return err
	}
	return c.JSON(b)
}

func (s *Server) deleteBaseline(c fiber.Ctx) error {
	if err := s.engine.Baselines().Delete(c.Context(), c.Params("version")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

type compareRequest struct {
	Task schedule.Task `json:"task"`
}

func (s *Server) compareTask(c fiber.Ctx) error {
	var req compareRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cmp, err := s.engine.CompareToBaseline(c.Context(), req.Task, c.Params("version"))
	if err != nil {
		return err
	}
	return c.JSON(cmp)
}

func (s *Server) compareProject(c fiber.Ctx) error {
	var snap schedule.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	pc, err := s.engine.Baselines().CompareProject(c.Context(), snap.Tasks, c.Params("version"))
	if err != nil {
		return err
	}
	return c.JSON(pc)
}

type restoreRequest struct {
	Task       schedule.Task `json:"task"`
	Fields     []string      `json:"fields"`
	RestoredBy string        `json:"restored_by"`
}

func (s *Server) restore(c fiber.Ctx) error {
	var req restoreRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.engine.RestoreFromBaseline(c.Context(), req.Task, c.Params("version"), req.Fields, req.RestoredBy)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) history(c fiber.Ctx) error {
	h, err := s.engine.Baselines().History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(h)
}
