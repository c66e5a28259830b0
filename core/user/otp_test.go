package user

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_otpStore(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("single use", func(t *testing.T) {
		s := newOtpStore(6, time.Minute, 3)
		code, err := s.issue("sam@lms.local", now)
		require.NoError(t, err)
		assert.Len(t, code, 6)

		assert.NoError(t, s.verify("sam@lms.local", " "+code+" ", now))
		assert.Equal(t, ErrInvalidOtp, s.verify("sam@lms.local", code, now))
	})

	t.Run("expired", func(t *testing.T) {
		s := newOtpStore(6, time.Minute, 3)
		code, err := s.issue("sam@lms.local", now)
		require.NoError(t, err)
		assert.Equal(t, ErrInvalidOtp, s.verify("sam@lms.local", code, now.Add(time.Minute)))
	})

	t.Run("too many attempts", func(t *testing.T) {
		s := newOtpStore(4, time.Minute, 2)
		code, err := s.issue("sam@lms.local", now)
		require.NoError(t, err)

		wrong := "0000"
		if code == wrong {
			wrong = "1111"
		}
		assert.Equal(t, ErrInvalidOtp, s.verify("sam@lms.local", wrong, now))
		assert.Equal(t, ErrInvalidOtp, s.verify("sam@lms.local", wrong, now))
		assert.Equal(t, ErrInvalidOtp, s.verify("sam@lms.local", code, now), "the code is burnt")
	})

	t.Run("reissue replaces", func(t *testing.T) {
		s := newOtpStore(8, time.Minute, 3)
		first, err := s.issue("sam@lms.local", now)
		require.NoError(t, err)
		second, err := s.issue("sam@lms.local", now)
		require.NoError(t, err)
		if first != second {
			assert.Equal(t, ErrInvalidOtp, s.verify("sam@lms.local", first, now))
		}
		assert.NoError(t, s.verify("sam@lms.local", second, now))
	})

	t.Run("defaults", func(t *testing.T) {
		s := newOtpStore(0, time.Minute, 0)
		assert.Equal(t, 6, s.length)
		assert.Equal(t, 5, s.maxAttempts)
	})
}

func TestRole(t *testing.T) {
	for _, role := range Roles() {
		parsed, err := ParseRole(string(role))
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
		assert.NotEmpty(t, role.Title())
	}
	parsed, err := ParseRole(" faculty ")
	require.NoError(t, err)
	assert.Equal(t, RoleFaculty, parsed)

	_, err = ParseRole("JANITOR")
	assert.Equal(t, ErrInvalidRole, errors.Cause(err))
	assert.False(t, Role("admin").Valid())
}
