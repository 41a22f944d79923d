package service

import (
	"context"
	"testing"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayCheckinReward(t *testing.T) {
	env := newTestEnv(t)
	reward := NewRewardService(env.ledger)
	ctx := context.Background()

	event := env.seedOwner(t, domain.OwnerEvent, "100.00")
	student := env.seedOwner(t, domain.OwnerStudent, "0")

	result, err := reward.PayCheckinReward(ctx, event, student.ID, mustDec(t, "5.00"), "checkin-1", uuid.NewString())
	require.NoError(t, err)
	assert.True(t, result.Rewarded)
	require.NotNil(t, result.Pair)
	assert.Equal(t, domain.TxEventPayout, result.Pair.Debit.Type)
	assert.Equal(t, domain.TxCheckinReward, result.Pair.Credit.Type)
	assert.Equal(t, "checkin-1", result.Pair.Credit.ReferenceID)

	assert.True(t, env.balance(t, event).Equal(mustDec(t, "95.00")))
	assert.True(t, env.balance(t, student).Equal(mustDec(t, "5.00")))
	env.requireReconciled(t, event, student)
}

// An underfunded source degrades the payout to an unrewarded outcome; the
// checkin workflow itself still succeeds. Contrast with funding and
// redemption, where insufficient funds is a hard failure.
func TestPayCheckinRewardDegradesWhenUnderfunded(t *testing.T) {
	env := newTestEnv(t)
	reward := NewRewardService(env.ledger)
	ctx := context.Background()

	event := env.seedOwner(t, domain.OwnerEvent, "1.00")
	student := env.seedOwner(t, domain.OwnerStudent, "0")
	before := env.rowCount(t)

	result, err := reward.PayCheckinReward(ctx, event, student.ID, mustDec(t, "5.00"), "checkin-2", uuid.NewString())
	require.NoError(t, err)
	assert.False(t, result.Rewarded)
	assert.Nil(t, result.Pair)

	assert.Equal(t, before, env.rowCount(t), "an unrewarded checkin posts nothing")
	assert.True(t, env.balance(t, event).Equal(mustDec(t, "1.00")))
	assert.True(t, env.balance(t, student).IsZero())
}

func TestPayCheckinRewardReplay(t *testing.T) {
	env := newTestEnv(t)
	reward := NewRewardService(env.ledger)
	ctx := context.Background()

	event := env.seedOwner(t, domain.OwnerEvent, "100.00")
	student := env.seedOwner(t, domain.OwnerStudent, "0")

	key := uuid.NewString()
	first, err := reward.PayCheckinReward(ctx, event, student.ID, mustDec(t, "5.00"), "checkin-3", key)
	require.NoError(t, err)
	require.True(t, first.Rewarded)

	second, err := reward.PayCheckinReward(ctx, event, student.ID, mustDec(t, "5.00"), "checkin-3", key)
	require.NoError(t, err)
	assert.True(t, second.Rewarded)
	assert.True(t, second.Pair.Replayed)

	assert.True(t, env.balance(t, student).Equal(mustDec(t, "5.00")), "the reward lands once")
}

// Partners can bankroll checkin rewards directly as well.
func TestPayCheckinRewardFromPartnerWallet(t *testing.T) {
	env := newTestEnv(t)
	reward := NewRewardService(env.ledger)
	ctx := context.Background()

	partner := env.seedOwner(t, domain.OwnerPartner, "20.00")
	student := env.seedOwner(t, domain.OwnerStudent, "0")

	result, err := reward.PayCheckinReward(ctx, partner, student.ID, mustDec(t, "2.00"), "checkin-4", uuid.NewString())
	require.NoError(t, err)
	assert.True(t, result.Rewarded)
	assert.True(t, env.balance(t, partner).Equal(mustDec(t, "18.00")))
}
