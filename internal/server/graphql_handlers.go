package server

import (
	"encoding/json"
	"strings"

	"socialgraph/internal/graph"
	"socialgraph/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GraphQL executes a query or mutation. POST takes a JSON body; GET takes
// query, operationName and variables from the query string and cannot run
// mutations.
func (s *Server) GraphQL(c *fiber.Ctx) error {
	var req graph.Request
	if c.Method() == fiber.MethodGet {
		req.Query = c.Query("query")
		req.OperationName = c.Query("operationName")
		if raw := c.Query("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return models.RespondWithError(c, fiber.StatusBadRequest,
					models.NewValidationError("variables must be a JSON object"))
			}
		}
	} else if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if strings.TrimSpace(req.Query) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("query is required"))
	}

	switch graph.OperationType(req) {
	case "subscription":
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("subscriptions are served over the /subscriptions websocket"))
	case "mutation":
		if c.Method() == fiber.MethodGet {
			return models.RespondWithError(c, fiber.StatusMethodNotAllowed,
				models.NewValidationError("mutations require POST"))
		}
	}

	resp := s.executor.Execute(c.UserContext(), req)
	return c.Status(fiber.StatusOK).JSON(resp)
}
