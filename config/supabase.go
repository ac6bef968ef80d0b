package config

import (
	"fmt"

	supa "github.com/supabase-community/supabase-go"
)

// NewSupabase builds the client backing the job record store.
func NewSupabase(cfg SupabaseConfig) (*supa.Client, error) {
	client, err := supa.NewClient(cfg.URL, cfg.ServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize supabase client: %w", err)
	}
	return client, nil
}
