// Package handlers implements the JSON API on top of the library service.
package handlers

import (
	"context"

	"github.com/jarq/jarq/internal/errors"
	"github.com/jarq/jarq/internal/library"
	"github.com/jarq/jarq/internal/models"
)

// Handler serves the library API.
type Handler struct {
	svc *library.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *library.Service) *Handler {
	return &Handler{svc: svc}
}

// EmptyResponse is returned by deletions.
type EmptyResponse struct{}

// CreateUserRequest registers a user.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUser registers a user. It does not require authentication.
func (h *Handler) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if req.Name == "" {
		return nil, errors.MissingField("name")
	}
	if req.Password == "" {
		return nil, errors.MissingField("password")
	}
	return h.svc.CreateUser(ctx, req.Name, req.Email, req.Password)
}

// LoginRequest checks credentials.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Login returns the user matching the credentials.
func (h *Handler) Login(ctx context.Context, req LoginRequest) (*models.User, error) {
	u, err := h.svc.Authenticate(ctx, req.Name, req.Password)
	if err != nil {
		if err == library.ErrUnauthorized { //nolint:errorlint // sentinel returned unwrapped
			return nil, errors.Unauthorized()
		}
		return nil, err
	}
	return u, nil
}

// UserRequest addresses a user.
type UserRequest struct {
	UserID int `path:"userID"`
}

// GetUser returns a user.
func (h *Handler) GetUser(ctx context.Context, req UserRequest) (*models.User, error) {
	return h.svc.GetUser(ctx, req.UserID)
}

// RemoveUser deletes a user and everything it owns.
func (h *Handler) RemoveUser(ctx context.Context, req UserRequest) (*EmptyResponse, error) {
	if err := h.svc.RemoveUser(ctx, req.UserID); err != nil {
		return nil, err
	}
	return &EmptyResponse{}, nil
}

// AddressRequest creates or changes the address of a user. Omitted fields
// are left unchanged on update.
type AddressRequest struct {
	UserID      int     `path:"userID"`
	PostalCode  *string `json:"postal_code"`
	City        *string `json:"city"`
	Street      *string `json:"street"`
	HouseNo     *string `json:"house_no"`
	ApartmentNo *string `json:"apartment_no"`
}

func (r *AddressRequest) fields() library.AddressFields {
	return library.AddressFields{
		PostalCode:  r.PostalCode,
		City:        r.City,
		Street:      r.Street,
		HouseNo:     r.HouseNo,
		ApartmentNo: r.ApartmentNo,
	}
}

// CreateAddress sets the address of a user.
func (h *Handler) CreateAddress(ctx context.Context, req AddressRequest) (*models.Address, error) {
	switch {
	case req.PostalCode == nil:
		return nil, errors.MissingField("postal_code")
	case req.City == nil:
		return nil, errors.MissingField("city")
	case req.Street == nil:
		return nil, errors.MissingField("street")
	case req.HouseNo == nil:
		return nil, errors.MissingField("house_no")
	}
	return h.svc.CreateAddress(ctx, req.UserID, req.fields())
}

// GetAddress returns the address of a user.
func (h *Handler) GetAddress(ctx context.Context, req UserRequest) (*models.Address, error) {
	return h.svc.GetAddress(ctx, req.UserID)
}

// UpdateAddress changes some fields of the address of a user.
func (h *Handler) UpdateAddress(ctx context.Context, req AddressRequest) (*models.Address, error) {
	return h.svc.UpdateAddress(ctx, req.UserID, req.fields())
}

// RemoveAddress deletes the address of a user.
func (h *Handler) RemoveAddress(ctx context.Context, req UserRequest) (*EmptyResponse, error) {
	if err := h.svc.RemoveAddress(ctx, req.UserID); err != nil {
		return nil, err
	}
	return &EmptyResponse{}, nil
}

// ListRepositoriesResponse lists repositories.
type ListRepositoriesResponse struct {
	Repositories []*models.Repository `json:"repositories"`
}

// ListRepositories returns the repositories of a user.
func (h *Handler) ListRepositories(ctx context.Context, req UserRequest) (*ListRepositoriesResponse, error) {
	list, err := h.svc.ListRepositories(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &ListRepositoriesResponse{Repositories: nonNil(list)}, nil
}

// NameRequest creates or renames a repository or a text.
type NameRequest struct {
	UserID int    `path:"userID"`
	RepoID int    `path:"repoID"`
	Name   string `json:"name"`
}

// CreateRepository creates a repository.
func (h *Handler) CreateRepository(ctx context.Context, req NameRequest) (*models.Repository, error) {
	if req.Name == "" {
		return nil, errors.MissingField("name")
	}
	return h.svc.CreateRepository(ctx, req.UserID, req.Name)
}

// RepositoryRequest addresses a repository.
type RepositoryRequest struct {
	UserID int `path:"userID"`
	RepoID int `path:"repoID"`
}

// GetRepository returns a repository.
func (h *Handler) GetRepository(ctx context.Context, req RepositoryRequest) (*models.Repository, error) {
	return h.svc.GetRepository(ctx, req.UserID, req.RepoID)
}

// RenameRepository renames a repository.
func (h *Handler) RenameRepository(ctx context.Context, req NameRequest) (*models.Repository, error) {
	if req.Name == "" {
		return nil, errors.MissingField("name")
	}
	return h.svc.RenameRepository(ctx, req.UserID, req.RepoID, req.Name)
}

// RemoveRepository deletes a repository.
func (h *Handler) RemoveRepository(ctx context.Context, req RepositoryRequest) (*EmptyResponse, error) {
	if err := h.svc.RemoveRepository(ctx, req.UserID, req.RepoID); err != nil {
		return nil, err
	}
	return &EmptyResponse{}, nil
}

// ListTextsResponse lists texts.
type ListTextsResponse struct {
	Texts []*models.Text `json:"texts"`
}

// ListTexts returns the texts of a repository.
func (h *Handler) ListTexts(ctx context.Context, req RepositoryRequest) (*ListTextsResponse, error) {
	list, err := h.svc.ListTexts(ctx, req.UserID, req.RepoID)
	if err != nil {
		return nil, err
	}
	return &ListTextsResponse{Texts: nonNil(list)}, nil
}

// CreateText creates a text.
func (h *Handler) CreateText(ctx context.Context, req NameRequest) (*models.Text, error) {
	if req.Name == "" {
		return nil, errors.MissingField("name")
	}
	return h.svc.CreateText(ctx, req.UserID, req.RepoID, req.Name)
}

// TextRequest addresses a text.
type TextRequest struct {
	UserID int `path:"userID"`
	RepoID int `path:"repoID"`
	TextID int `path:"textID"`
}

// GetText returns a text.
func (h *Handler) GetText(ctx context.Context, req TextRequest) (*models.Text, error) {
	return h.svc.GetText(ctx, req.UserID, req.RepoID, req.TextID)
}

// RemoveText deletes a text.
func (h *Handler) RemoveText(ctx context.Context, req TextRequest) (*EmptyResponse, error) {
	if err := h.svc.RemoveText(ctx, req.UserID, req.RepoID, req.TextID); err != nil {
		return nil, err
	}
	return &EmptyResponse{}, nil
}

// ListContentsResponse lists content files.
type ListContentsResponse struct {
	Contents []*models.Content `json:"contents"`
}

// ListContents returns the content files of a text.
func (h *Handler) ListContents(ctx context.Context, req TextRequest) (*ListContentsResponse, error) {
	list, err := h.svc.ListContents(ctx, req.UserID, req.RepoID, req.TextID)
	if err != nil {
		return nil, err
	}
	return &ListContentsResponse{Contents: nonNil(list)}, nil
}

// ContentRequest addresses a content file.
type ContentRequest struct {
	UserID   int    `path:"userID"`
	RepoID   int    `path:"repoID"`
	TextID   int    `path:"textID"`
	Filename string `path:"filename"`
}

// RemoveContent deletes a content file.
func (h *Handler) RemoveContent(ctx context.Context, req ContentRequest) (*EmptyResponse, error) {
	if err := h.svc.RemoveContent(ctx, req.UserID, req.RepoID, req.TextID, req.Filename); err != nil {
		return nil, err
	}
	return &EmptyResponse{}, nil
}

// HistoryRequest lists the commits of a content file.
type HistoryRequest struct {
	UserID   int    `path:"userID"`
	RepoID   int    `path:"repoID"`
	TextID   int    `path:"textID"`
	Filename string `path:"filename"`
	Limit    int    `query:"limit"`
}

// HistoryResponse lists commits, newest first.
type HistoryResponse struct {
	Commits []*models.Commit `json:"commits"`
}

// ContentHistory returns the commits touching a content file.
func (h *Handler) ContentHistory(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	commits, err := h.svc.ContentHistory(ctx, req.UserID, req.RepoID, req.TextID, req.Filename, req.Limit)
	if err != nil {
		return nil, err
	}
	return &HistoryResponse{Commits: nonNil(commits)}, nil
}

// nonNil makes empty lists encode as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
