// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackRecv(t *testing.T) {
	lb := NewLoopback([]byte{1, 2}, []byte{3, 4, 5})
	assert.Equal(t, 5, lb.Pending())

	p := make([]byte, 3)
	require.NoError(t, lb.Recv(p))
	assert.Equal(t, []byte{1, 2, 3}, p)
	assert.Equal(t, 2, lb.Pending())

	// Short read consumes what is left and fails
	p = make([]byte, 4)
	err := lb.Recv(p)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, []byte{4, 5, 0, 0}, p)
	assert.Equal(t, 0, lb.Pending())

	assert.ErrorIs(t, lb.Recv(make([]byte, 1)), ErrTimeout)
}

func TestLoopbackFeed(t *testing.T) {
	lb := NewLoopback()
	lb.Feed([]byte{9})

	p := make([]byte, 1)
	require.NoError(t, lb.Recv(p))
	assert.Equal(t, byte(9), p[0])
}

func TestLoopbackSendAndErrors(t *testing.T) {
	lb := NewLoopback()

	require.NoError(t, lb.Send([]byte{0x30}))
	lb.RaiseDeviceError(0x0F)
	lb.RaiseDeviceError(0)

	assert.Equal(t, []byte{0x30}, lb.Sent())
	assert.Equal(t, []uint8{0x0F, 0}, lb.DeviceErrors())

	sendErr := errors.New("line held low")
	lb.FailSends(sendErr)
	assert.ErrorIs(t, lb.Send([]byte{0x30}), sendErr)
	assert.Equal(t, []byte{0x30}, lb.Sent())

	lb.FailSends(nil)
	require.NoError(t, lb.Send([]byte{0x30}))
	assert.Len(t, lb.Sent(), 2)

	lb.Clear()
	assert.Empty(t, lb.Sent())
	assert.Empty(t, lb.DeviceErrors())
}
