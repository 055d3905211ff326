package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shortloop/gateway/internal/model"
	"github.com/shortloop/gateway/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// LinkServiceInterface defines the owner-facing link operations.
type LinkServiceInterface interface {
	CreateLink(ctx context.Context, ownerID uuid.UUID, req *model.CreateLinkRequest) (*model.CreateLinkResponse, error)
	GetLink(ctx context.Context, ownerID uuid.UUID, code string) (*model.LinkResponse, error)
	ListLinks(ctx context.Context, ownerID uuid.UUID) ([]*model.LinkResponse, error)
	UpdateLink(ctx context.Context, ownerID uuid.UUID, code string, req *model.UpdateLinkRequest) (*model.LinkResponse, error)
	DeactivateLink(ctx context.Context, ownerID uuid.UUID, code string) error
	DeleteLink(ctx context.Context, ownerID uuid.UUID, code string) error
	Analytics(ctx context.Context, ownerID uuid.UUID, code string, days int) (*model.AnalyticsResponse, error)
}

var validDeviceTypes = map[string]bool{
	model.DeviceDesktop: true,
	model.DeviceMobile:  true,
	model.DeviceTablet:  true,
}

// LinkService handles the owner-facing link lifecycle. Every mutation
// goes through the cached repository so the cache entry for the affected
// code is invalidated on the same path as the write.
type LinkService struct {
	repo      *repository.CachedLinkRepository
	links     *repository.LinkRepository
	clicks    *repository.ClickRepository
	generator *ShortCodeGenerator
	checker   *URLChecker
	baseURL   string
	retries   int
}

// NewLinkService creates a new link service
func NewLinkService(repo *repository.CachedLinkRepository, links *repository.LinkRepository, clicks *repository.ClickRepository,
	generator *ShortCodeGenerator, checker *URLChecker, baseURL string, retries int) *LinkService {
	return &LinkService{
		repo:      repo,
		links:     links,
		clicks:    clicks,
		generator: generator,
		checker:   checker,
		baseURL:   baseURL,
		retries:   retries,
	}
}

// CreateLink validates the destination and restrictions, allocates a
// short code (or takes the caller's alias) and inserts the record.
func (s *LinkService) CreateLink(ctx context.Context, ownerID uuid.UUID, req *model.CreateLinkRequest) (*model.CreateLinkResponse, error) {
	cleanURL, warnings, err := s.checker.Check(req.URL)
	if err != nil {
		return nil, err
	}

	status := req.RedirectStatus
	if status == 0 {
		status = 302
	}
	if status != 301 && status != 302 && status != 307 {
		return nil, fmt.Errorf("%w: redirect status must be 301, 302 or 307", ErrInvalidRequest)
	}
	for _, d := range req.DeviceTypes {
		if !validDeviceTypes[d] {
			return nil, fmt.Errorf("%w: unknown device type %q", ErrInvalidRequest, d)
		}
	}

	link := &model.Link{
		ID:             uuid.New(),
		OriginalURL:    cleanURL,
		OwnerID:        ownerID,
		IsActive:       true,
		RedirectStatus: status,
		Countries:      req.Countries,
		CountriesAllow: true,
		DeviceTypes:    req.DeviceTypes,
	}
	if req.CountriesAllow != nil {
		link.CountriesAllow = *req.CountriesAllow
	}
	if req.ExpiresIn > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresIn)
		link.ExpiresAt = &t
	}
	if req.MaxClicks > 0 {
		link.MaxClicks = &req.MaxClicks
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		h := string(hash)
		link.PasswordHash = &h
	}
	setOptional(&link.UTMSource, req.UTMSource)
	setOptional(&link.UTMMedium, req.UTMMedium)
	setOptional(&link.UTMCampaign, req.UTMCampaign)

	if req.CustomAlias != "" {
		if err := s.generator.ValidateAlias(req.CustomAlias); err != nil {
			return nil, err
		}
		// Reject a taken alias before writing anything; the unique index
		// remains the backstop for creation races.
		if _, err := s.repo.GetByCodeFresh(ctx, req.CustomAlias); err == nil {
			return nil, ErrCodeExists
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		alias := req.CustomAlias
		link.CustomAlias = &alias
	}

	if err := s.createWithRetry(ctx, link); err != nil {
		return nil, err
	}

	shortCode := link.ShortCode
	if link.CustomAlias != nil {
		shortCode = *link.CustomAlias
	}

	var expiresAtStr string
	if link.ExpiresAt != nil {
		expiresAtStr = link.ExpiresAt.Format(time.RFC3339)
	}

	return &model.CreateLinkResponse{
		ShortCode: shortCode,
		ShortURL:  s.baseURL + "/" + shortCode,
		ExpiresAt: expiresAtStr,
		Warnings:  warnings,
	}, nil
}

// createWithRetry allocates a fresh random code per attempt and relies on
// the store's unique index for the collision check. Exhausting the bound
// is ErrCodeGeneration; an alias conflict is surfaced immediately.
func (s *LinkService) createWithRetry(ctx context.Context, link *model.Link) error {
	for attempt := 0; attempt < s.retries; attempt++ {
		code, err := s.generator.Generate()
		if err != nil {
			return err
		}
		link.ShortCode = code
		err = s.repo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrCodeConflict) {
			return err
		}
		if link.CustomAlias != nil {
			// The random code almost never collides; with an alias in
			// play the conflict is the alias itself.
			if _, lookupErr := s.repo.GetByCodeFresh(ctx, *link.CustomAlias); lookupErr == nil {
				return ErrCodeExists
			}
		}
	}
	return ErrCodeGeneration
}

// GetLink retrieves link metadata for its owner.
func (s *LinkService) GetLink(ctx context.Context, ownerID uuid.UUID, code string) (*model.LinkResponse, error) {
	link, err := s.ownedLink(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}
	return s.toResponse(link), nil
}

// ListLinks returns all links of an owner.
func (s *LinkService) ListLinks(ctx context.Context, ownerID uuid.UUID) ([]*model.LinkResponse, error) {
	links, err := s.links.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.LinkResponse, 0, len(links))
	for _, link := range links {
		out = append(out, s.toResponse(link))
	}
	return out, nil
}

// UpdateLink applies a partial update. The cached entry is invalidated by
// the repository on the same call.
func (s *LinkService) UpdateLink(ctx context.Context, ownerID uuid.UUID, code string, req *model.UpdateLinkRequest) (*model.LinkResponse, error) {
	link, err := s.ownedLink(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		clean, _, err := s.checker.Check(*req.URL)
		if err != nil {
			return nil, err
		}
		link.OriginalURL = clean
	}
	if req.IsActive != nil {
		link.IsActive = *req.IsActive
	}
	if req.ExpiresAt != nil {
		link.ExpiresAt = req.ExpiresAt
	}
	if req.RedirectStatus != nil {
		rs := *req.RedirectStatus
		if rs != 301 && rs != 302 && rs != 307 {
			return nil, fmt.Errorf("%w: redirect status must be 301, 302 or 307", ErrInvalidRequest)
		}
		link.RedirectStatus = rs
	}
	if req.MaxClicks != nil {
		if *req.MaxClicks <= 0 {
			link.MaxClicks = nil
		} else {
			link.MaxClicks = req.MaxClicks
		}
	}
	if req.Password != nil {
		if *req.Password == "" {
			link.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			h := string(hash)
			link.PasswordHash = &h
		}
	}
	if req.UTMSource != nil {
		link.UTMSource = req.UTMSource
	}
	if req.UTMMedium != nil {
		link.UTMMedium = req.UTMMedium
	}
	if req.UTMCampaign != nil {
		link.UTMCampaign = req.UTMCampaign
	}
	if req.Countries != nil {
		link.Countries = *req.Countries
	}
	if req.CountriesAllow != nil {
		link.CountriesAllow = *req.CountriesAllow
	}
	if req.DeviceTypes != nil {
		for _, d := range *req.DeviceTypes {
			if !validDeviceTypes[d] {
				return nil, fmt.Errorf("%w: unknown device type %q", ErrInvalidRequest, d)
			}
		}
		link.DeviceTypes = *req.DeviceTypes
	}

	if err := s.repo.Update(ctx, link); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return s.toResponse(link), nil
}

// DeactivateLink soft-deletes a link: the record stays, resolution denies.
func (s *LinkService) DeactivateLink(ctx context.Context, ownerID uuid.UUID, code string) error {
	link, err := s.ownedLink(ctx, ownerID, code)
	if err != nil {
		return err
	}
	link.IsActive = false
	if err := s.repo.Update(ctx, link); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLinkNotFound
		}
		return err
	}
	return nil
}

// DeleteLink removes a link permanently.
func (s *LinkService) DeleteLink(ctx context.Context, ownerID uuid.UUID, code string) error {
	if _, err := s.ownedLink(ctx, ownerID, code); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLinkNotFound
		}
		return err
	}
	return nil
}

// Analytics assembles the stats summary, daily series and breakdowns for
// one link.
func (s *LinkService) Analytics(ctx context.Context, ownerID uuid.UUID, code string, days int) (*model.AnalyticsResponse, error) {
	link, err := s.ownedLink(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 30
	}

	stats, err := s.clicks.Stats(ctx, link.ID)
	if err != nil {
		return nil, err
	}
	daily, err := s.clicks.Daily(ctx, link.ID, days)
	if err != nil {
		return nil, err
	}
	devices, err := s.clicks.Breakdown(ctx, link.ID, "device")
	if err != nil {
		return nil, err
	}
	countries, err := s.clicks.Breakdown(ctx, link.ID, "country")
	if err != nil {
		return nil, err
	}
	referrers, err := s.clicks.Breakdown(ctx, link.ID, "referrer")
	if err != nil {
		return nil, err
	}

	return &model.AnalyticsResponse{
		ShortCode: link.ShortCode,
		Summary:   *stats,
		Daily:     daily,
		Devices:   devices,
		Countries: countries,
		Referrers: referrers,
	}, nil
}

// ownedLink fetches a link from the store (never the cache: owner
// operations must see current state) and checks ownership. Links owned by
// someone else surface as not found so codes cannot be probed.
func (s *LinkService) ownedLink(ctx context.Context, ownerID uuid.UUID, code string) (*model.Link, error) {
	link, err := s.repo.GetByCodeFresh(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

func (s *LinkService) toResponse(link *model.Link) *model.LinkResponse {
	resp := &model.LinkResponse{
		ShortCode:        link.ShortCode,
		OriginalURL:      link.OriginalURL,
		ShortURL:         s.baseURL + "/" + link.ShortCode,
		IsActive:         link.IsActive,
		RedirectStatus:   link.RedirectStatus,
		CreatedAt:        link.CreatedAt.Format(time.RFC3339),
		ClickCount:       link.ClickCount,
		UniqueClickCount: link.UniqueClickCount,
		Countries:        link.Countries,
		CountriesAllow:   link.CountriesAllow,
		DeviceTypes:      link.DeviceTypes,
	}
	if link.CustomAlias != nil {
		resp.CustomAlias = *link.CustomAlias
		resp.ShortURL = s.baseURL + "/" + *link.CustomAlias
	}
	if link.ExpiresAt != nil {
		resp.ExpiresAt = link.ExpiresAt.Format(time.RFC3339)
	}
	if link.LastClickAt != nil {
		resp.LastClickAt = link.LastClickAt.Format(time.RFC3339)
	}
	if link.MaxClicks != nil {
		resp.MaxClicks = *link.MaxClicks
	}
	return resp
}

func setOptional(dst **string, val string) {
	if val != "" {
		v := val
		*dst = &v
	}
}

// Ensure LinkService implements LinkServiceInterface at compile time
var _ LinkServiceInterface = (*LinkService)(nil)
