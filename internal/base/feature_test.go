package base

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ycvk/go-essence/modules/config"
)

func TestApplyDefaults(t *testing.T) {
	conf := &config.Config{}
	conf.Essence.EnableGroups = []string{"123", "bad", " 456 "}
	Apply(conf)

	assert.False(t, AllGroups)
	assert.True(t, GroupEnabled(123))
	assert.True(t, GroupEnabled(456))
	assert.False(t, GroupEnabled(789))
	assert.Equal(t, 5, RandomLimit)
	assert.Equal(t, 12*time.Hour, RandomWindow)
	assert.Equal(t, 100, SearchMaxLength)
	assert.Equal(t, 3, GoodThreshold)
	assert.Equal(t, 24*time.Hour, NicknameTTL)
	assert.Equal(t, 3*time.Second, APITimeout)
	assert.True(t, LogColorful)
	assert.Equal(t, int64(32<<20), ImageMaxSize)

	conf.Essence.ImageMaxSize = "2 MB"
	Apply(conf)
	assert.Equal(t, int64(2_000_000), ImageMaxSize)
	conf.Essence.ImageMaxSize = "huge"
	Apply(conf)
	assert.Equal(t, int64(32<<20), ImageMaxSize)
}

func TestApplyAll(t *testing.T) {
	Apply(config.Default())
	assert.True(t, AllGroups)
	assert.True(t, GroupEnabled(42))
	assert.Equal(t, "0 * * * *", SweepCron)
	assert.Equal(t, int64(32<<20), ImageMaxSize)
}
