package api

import (
	"github.com/traitlab/traitlab/internal/services"
)

type adminStoreAdapter struct {
	store Store
}

func newAdminStoreAdapter(store Store) services.AdminStore {
	return &adminStoreAdapter{store: store}
}

func (a *adminStoreAdapter) FindAdminByEmail(email string) (*services.AdminUser, error) {
	u := a.store.FindAdminByEmail(email)
	if u == nil {
		return nil, nil
	}
	return &services.AdminUser{ID: u.ID, Email: u.Email, PassHash: u.PassHash, TenantID: u.TenantID, CreatedAt: u.CreatedAt}, nil
}

func (a *adminStoreAdapter) AddAdmin(u *services.AdminUser) error {
	if u == nil {
		return services.NewInvalidError("admin required")
	}
	a.store.AddAdmin(&AdminUser{ID: u.ID, Email: u.Email, PassHash: u.PassHash, TenantID: u.TenantID, CreatedAt: u.CreatedAt})
	return nil
}

func (a *adminStoreAdapter) AddTenant(t *services.Tenant) error {
	if t == nil {
		return services.NewInvalidError("tenant required")
	}
	a.store.AddTenant(&Tenant{ID: t.ID, Name: t.Name})
	return nil
}

var _ services.AdminStore = (*adminStoreAdapter)(nil)
