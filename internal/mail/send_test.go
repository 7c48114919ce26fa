package mail

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"stockChipDip/internal/config"
	"stockChipDip/internal/model"
	"stockChipDip/internal/trace"
)

func TestMain(m *testing.M) {
	trace.SetLogger(nil)
	os.Exit(m.Run())
}

func TestBuildHTMLTable(t *testing.T) {
	rows := []*model.ScreenResult{{
		Code:          "600000",
		Name:          "浦发<银行>",
		CurrentPrice:  9.456,
		AvgCost:       11,
		PricePosition: 0.5,
		TrendingUp:    true,
	}}
	html := buildHTMLTable(rows)

	assert.Contains(t, html, "600000")
	assert.Contains(t, html, "浦发&lt;银行&gt;")
	assert.Contains(t, html, "9.46")
	assert.Contains(t, html, "上涨")
	assert.NotContains(t, html, "<银行>")
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a&amp;b&lt;c&gt;d&quot;e", escapeHTML(`a&b<c>d"e`))
}

func TestSendReport_SkipsWhenUnconfiguredOrEmpty(t *testing.T) {
	ctx := context.Background()
	rows := []*model.ScreenResult{{Code: "600000"}}

	assert.NoError(t, SendReport(ctx, nil, rows))
	assert.NoError(t, SendReport(ctx, &config.SMTP{}, rows))
	assert.NoError(t, SendReport(ctx, &config.SMTP{
		Server: "smtp.example.com", From: "a@b.c", To: "d@e.f",
	}, nil))
}
