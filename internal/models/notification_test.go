package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRecipient(t *testing.T) {
	cases := []struct {
		intent string
		group  NotificationGroup
	}{
		{"all_patients", NotificationGroupPatient},
		{"all_doctors", NotificationGroupDoctor},
		{"all_staff", NotificationGroupStaff},
		{"all_admins", NotificationGroupAdmin},
		{"everyone", NotificationGroupAll},
		{" ALL ", NotificationGroupAll},
		{"doctor", NotificationGroupDoctor},
	}
	for _, tc := range cases {
		group, recipient, err := ResolveRecipient(tc.intent, nil)
		require.NoError(t, err, tc.intent)
		assert.Equal(t, tc.group, group, tc.intent)
		assert.Nil(t, recipient, "broadcast %s must not carry a recipient", tc.intent)
	}
}

func TestResolveRecipientIndividual(t *testing.T) {
	id := int64(7)
	group, recipient, err := ResolveRecipient("individual", &id)
	require.NoError(t, err)
	assert.Equal(t, NotificationGroupIndividual, group)
	require.NotNil(t, recipient)
	assert.Equal(t, int64(7), *recipient)

	_, _, err = ResolveRecipient("individual", nil)
	assert.ErrorIs(t, err, ErrRecipientIDRequired)
}

func TestResolveRecipientRejectsUnknown(t *testing.T) {
	_, _, err := ResolveRecipient("", nil)
	assert.ErrorIs(t, err, ErrRecipientRequired)

	_, _, err = ResolveRecipient("all_technicians", nil)
	assert.ErrorIs(t, err, ErrRecipientUnknown)
}

func TestResolveRecipientRejectsIDOnBroadcast(t *testing.T) {
	id := int64(12)
	for _, intent := range []string{"all_patients", "doctor", "everyone"} {
		_, recipient, err := ResolveRecipient(intent, &id)
		assert.ErrorIs(t, err, ErrRecipientIDNotAllowed, intent)
		assert.Nil(t, recipient, intent)
	}
}
