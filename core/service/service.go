// Package service wires the kernel's core packages into the REST
// surface spec §6 describes: GET /health, POST /api/slice,
// POST /api/slice/batch, POST /api/verify_token, GET/POST /api/policies.
// Routing, request-ID propagation, and panic recovery follow gin the
// way jinterlante1206-AleutianLocal's trace service does. Internal
// failures (store/registry errors, slice failures) are classified
// through core/errors before being rendered, so a response's category
// field is stable regardless of which package raised the underlying
// error; client-input and not-found outcomes are spec §6's own fixed
// codes and bypass classification entirely.
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidahmann/graphkernel/core/atlas"
	"github.com/davidahmann/graphkernel/core/boundary"
	apperrors "github.com/davidahmann/graphkernel/core/errors"
	"github.com/davidahmann/graphkernel/core/graphstore"
	"github.com/davidahmann/graphkernel/core/incident"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/core/turn"
	"github.com/davidahmann/graphkernel/internal/obslog"
)

const version = "0.1.0"

// Server holds every dependency the kernel's HTTP handlers need.
type Server struct {
	Store    graphstore.GraphStore
	Registry *policy.Registry
	Signer   slicer.Signer   // nil disables token signing
	Verifier token.Verifier  // nil rejects every verify_token request
	Metrics  incident.Metrics
}

// Router builds the gin engine, with request-ID and panic-recovery
// middleware ahead of every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/api/slice", s.handleSlice)
	r.POST("/api/slice/batch", s.handleSliceBatch)
	r.POST("/api/verify_token", s.handleVerifyToken)
	r.GET("/api/policies", s.handleListPolicies)
	r.POST("/api/policies", s.handleRegisterPolicy)
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				obslog.Error("SERVICE_PANIC_RECOVERED", map[string]any{
					"request_id": c.GetString("request_id"),
					"path":       c.Request.URL.Path,
					"recovered":  r,
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("STORE_ERROR", "internal error"))
			}
		}()
		c.Next()
	}
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// classifiedErrorBody renders err through core/errors' classification so
// the response carries a stable category alongside its code/message.
// Errors that were never wrapped (client-input and not-found outcomes
// bypass this path entirely) fall back to code/message directly.
func classifiedErrorBody(err error, code, message string) gin.H {
	body := gin.H{"code": code, "message": message}
	if category := apperrors.CategoryOf(err); category != "" {
		body["category"] = string(category)
	}
	return gin.H{"error": body}
}

func (s *Server) handleHealth(c *gin.Context) {
	fingerprint, err := s.Registry.Fingerprint()
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.CategoryInternalFailure, "STORE_ERROR", "", false)
		c.JSON(http.StatusInternalServerError, classifiedErrorBody(wrapped, "STORE_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"version":             version,
		"schema_version":      slicer.SchemaVersion,
		"policy_count":        s.Registry.Count(),
		"registry_fingerprint": fingerprint,
	})
}

type sliceRequest struct {
	AnchorTurnID string      `json:"anchor_turn_id" binding:"required"`
	PolicyRef    *policy.Ref `json:"policy_ref"`
}

func (s *Server) resolvePolicy(ref *policy.Ref) (policy.SlicePolicy, policy.Ref, bool) {
	if ref == nil {
		p := policy.Default()
		paramsHash, err := p.ParamsHash()
		if err != nil {
			return policy.SlicePolicy{}, policy.Ref{}, false
		}
		defaultRef := policy.Ref{PolicyID: policy.Version, ParamsHash: paramsHash}
		if resolved, ok := s.Registry.Resolve(defaultRef); ok {
			return resolved, defaultRef, true
		}
		registered, err := s.Registry.Register(policy.Version, p)
		if err != nil {
			return policy.SlicePolicy{}, policy.Ref{}, false
		}
		return p, registered, true
	}
	resolved, ok := s.Registry.Resolve(*ref)
	return resolved, *ref, ok
}

func (s *Server) handleSlice(c *gin.Context) {
	var req sliceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
		return
	}
	anchorID, err := turn.ParseID(req.AnchorTurnID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
		return
	}
	p, ref, ok := s.resolvePolicy(req.PolicyRef)
	if !ok {
		c.JSON(http.StatusNotFound, errorBody("POLICY_NOT_FOUND", "policy_ref does not resolve"))
		return
	}

	export, fellBack, err := slicer.Slice(c.Request.Context(), s.Store, anchorID, p, ref, s.Signer)
	if fellBack {
		obslog.Warn(slicer.StatsFallbackMarker, map[string]any{"anchor_turn_id": anchorID.String()})
	}
	if slicer.IsAnchorNotFound(err) {
		c.JSON(http.StatusNotFound, errorBody("ANCHOR_NOT_FOUND", err.Error()))
		return
	}
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.CategoryInternalFailure, "SLICE_FAILED", "retry or contact support if this persists", false)
		c.JSON(http.StatusInternalServerError, classifiedErrorBody(wrapped, "SLICE_FAILED", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"slice": export, "policy_ref": ref})
}

type sliceBatchRequest struct {
	AnchorTurnIDs []string    `json:"anchor_turn_ids" binding:"required"`
	PolicyRef     *policy.Ref `json:"policy_ref"`
}

func (s *Server) handleSliceBatch(c *gin.Context) {
	var req sliceBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
		return
	}
	anchorIDs := make([]turn.ID, 0, len(req.AnchorTurnIDs))
	for _, raw := range req.AnchorTurnIDs {
		id, err := turn.ParseID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
			return
		}
		anchorIDs = append(anchorIDs, id)
	}
	p, ref, ok := s.resolvePolicy(req.PolicyRef)
	if !ok {
		c.JSON(http.StatusNotFound, errorBody("POLICY_NOT_FOUND", "policy_ref does not resolve"))
		return
	}

	result := atlas.BatchSlice(c.Request.Context(), s.Store, anchorIDs, p, ref, s.Signer)
	slices := make([]any, 0, len(result.Entries))
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Entries {
		if e.Err == nil {
			slices = append(slices, e.Export)
		}
	}
	for _, e := range result.Errors {
		errs = append(errs, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"slices":        slices,
		"policy_ref":    ref,
		"success_count": result.SuccessCount,
		"errors":        errs,
	})
}

func (s *Server) handleVerifyToken(c *gin.Context) {
	var fields token.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
		return
	}
	if s.Verifier == nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": "no verifier configured"})
		return
	}
	outcome, err := s.Verifier.Verify(c.Request.Context(), fields)
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.CategoryInternalFailure, "STORE_ERROR", "", false)
		c.JSON(http.StatusInternalServerError, classifiedErrorBody(wrapped, "STORE_ERROR", err.Error()))
		return
	}
	if outcome != token.Valid {
		if s.Metrics != nil {
			s.Metrics.RecordTokenVerifyFailure()
		}
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": outcome.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) handleListPolicies(c *gin.Context) {
	fingerprint, err := s.Registry.Fingerprint()
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.CategoryInternalFailure, "STORE_ERROR", "", false)
		c.JSON(http.StatusInternalServerError, classifiedErrorBody(wrapped, "STORE_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"policy_count":         s.Registry.Count(),
		"registry_fingerprint": fingerprint,
	})
}

type registerPolicyRequest struct {
	Policy policy.SlicePolicy `json:"policy" binding:"required"`
}

func (s *Server) handleRegisterPolicy(c *gin.Context) {
	var req registerPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
		return
	}
	ref, err := s.Registry.Register(policy.Version, req.Policy)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_TURN_ID", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy_ref": ref})
}

// CheckBoundary wraps a boundary.Guard.CheckAccess call with the
// structured-log + metrics side effects spec §4.10 requires on
// violation.
func CheckBoundary(ctx context.Context, guard boundary.Guard, requested []turn.ID, accessContext string, metrics incident.Metrics) boundary.CheckResult {
	_ = ctx
	result := guard.CheckAccess(requested, accessContext)
	if !result.Authorized {
		obslog.Warn("SLICE_BOUNDARY_VIOLATION", map[string]any{
			"slice_fingerprint": result.SliceFingerprint,
			"unauthorized_ids":  idsToStrings(result.UnauthorizedIDs),
			"context":           result.Context,
			"timestamp":         result.Timestamp.Format(time.RFC3339),
		})
		if metrics != nil {
			metrics.RecordBoundaryViolation()
		}
	}
	return result
}

func idsToStrings(ids []turn.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
