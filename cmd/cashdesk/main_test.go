package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/internal/app"
	_ "github.com/lastmile/cashdesk/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
