package fuzzy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/provider/nlu/fuzzy"
)

func timerDonation() *donation.Donation {
	return &donation.Donation{
		HandlerDomain: "timer",
		MethodDonations: []donation.MethodDonation{
			{
				MethodName:   "set",
				IntentSuffix: "set",
				Phrases:      []string{"поставь таймер", "set a timer"},
				Parameters: []donation.Parameter{
					{Name: "duration", Type: donation.ParamDuration, Required: true},
				},
				Examples: []donation.Example{
					{Text: "заведи будильник"},
				},
			},
		},
	}
}

func TestProvider_ExactPrefixYieldsTail(t *testing.T) {
	t.Parallel()

	p := fuzzy.New()
	p.AddDonation(timerDonation())

	in, err := p.Recognize(context.Background(), nlu.Request{
		Text:      "поставь таймер на пять минут",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, "timer.set", in.Name)
	assert.Equal(t, "на пять минут", in.Entities["duration"])
	assert.GreaterOrEqual(t, in.Confidence, 0.9, "exact prefix should score high")
}

func TestProvider_ToleratesMistranscription(t *testing.T) {
	t.Parallel()

	p := fuzzy.New()
	p.AddDonation(timerDonation())

	// One vowel off from the donated phrase; Jaro-Winkler similarity stays
	// well above the fuzzy threshold.
	in, err := p.Recognize(context.Background(), nlu.Request{Text: "паставь таймер"})
	require.NoError(t, err)
	assert.Equal(t, "timer.set", in.Name)
}

func TestProvider_ExampleTextParticipates(t *testing.T) {
	t.Parallel()

	p := fuzzy.New()
	p.AddDonation(timerDonation())

	in, err := p.Recognize(context.Background(), nlu.Request{Text: "заведи будильник"})
	require.NoError(t, err)
	assert.Equal(t, "timer.set", in.Name)
}

func TestProvider_NoMatch(t *testing.T) {
	t.Parallel()

	p := fuzzy.New()
	p.AddDonation(timerDonation())

	_, err := p.Recognize(context.Background(), nlu.Request{Text: "расскажи анекдот"})
	assert.ErrorIs(t, err, nlu.ErrNoMatch)
}

func TestProvider_EmptyIndex(t *testing.T) {
	t.Parallel()

	p := fuzzy.New()
	_, err := p.Recognize(context.Background(), nlu.Request{Text: "поставь таймер"})
	assert.ErrorIs(t, err, nlu.ErrNoMatch)
}
