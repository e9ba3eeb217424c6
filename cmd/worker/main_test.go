package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/daybook/internal/app"
	_ "github.com/odyssey-erp/daybook/internal/testing/guard"
)

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
