package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/app"
	_ "github.com/mannybatth/carrier-nest-web-sub010/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
