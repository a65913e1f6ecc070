package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	rows  int64
	err   error
	calls int
	at    time.Time
}

func (f *fakeSweeper) ClearExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	f.calls++
	f.at = now
	return f.rows, f.err
}

func (f *fakeSweeper) DeleteStaleUnverified(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.at = cutoff
	return f.rows, f.err
}

func TestCronService_RunOnce(t *testing.T) {
	users := &fakeSweeper{rows: 2}
	bookings := &fakeSweeper{rows: 1}
	stale := &fakeSweeper{rows: 3}

	svc := NewCronService(CronJobs{UserOTPs: users, BookingOTPs: bookings, Unverified: stale}, quietLogger())
	results, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), results["clear_expired_user_otps"])
	assert.Equal(t, int64(1), results["clear_expired_booking_otps"])
	assert.Equal(t, int64(3), results["delete_stale_unverified_users"])
	assert.WithinDuration(t, time.Now().Add(-unverifiedRetention), stale.at, time.Minute)
}

func TestCronService_RunOnceStopsOnError(t *testing.T) {
	users := &fakeSweeper{err: errors.New("db down")}
	bookings := &fakeSweeper{}

	svc := NewCronService(CronJobs{UserOTPs: users, BookingOTPs: bookings}, quietLogger())
	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear_expired_user_otps")
	assert.Equal(t, 0, bookings.calls)
}

func TestCronService_StartAndStop(t *testing.T) {
	svc := NewCronService(CronJobs{UserOTPs: &fakeSweeper{}, BookingOTPs: &fakeSweeper{}}, quietLogger())
	require.NoError(t, svc.Start())

	status := svc.GetJobStatus()
	assert.Equal(t, 2, status["job_count"])
	assert.Equal(t, true, status["running"])

	svc.Stop()
}
