package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrPhoneExists        = errors.New("a user with this phone number already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is not active")
	ErrInvalidOtp         = errors.New("invalid or expired OTP")
	ErrInvalidJoinCode    = errors.New("invalid join code")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CheckContactUniqueness(ctx context.Context, email, phone string) error
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccountByID(ctx context.Context, id int64) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		GetAccountByPhone(ctx context.Context, phone string) (Account, error)
		UpdateAccount(ctx context.Context, acc Account) (Account, error)
		SetLastLogin(ctx context.Context, id int64, at time.Time) error
	}

	// Service is the account logic behind the development authentication API.
	Service interface {
		Create(ctx context.Context, na NewAccount) (Account, error)
		GetByID(ctx context.Context, id int64) (Account, error)
		GetByContact(ctx context.Context, contact string) (Account, error)
		Authenticate(ctx context.Context, email, pwd string) (Account, error)
		RequestOtp(ctx context.Context, identifier string) error
		VerifyOtp(ctx context.Context, identifier, code string) (Account, error)
		Join(ctx context.Context, code, name, contact string) (Account, error)
		ResetPassword(ctx context.Context, contact, pwd string) error
		SeedAdmin(ctx context.Context, email, pwd string) (bool, error)
	}

	service struct {
		repo      Repository
		validator *core.Validator
		mailSvc   core.EmailService
		logger    core.Logger
		otps      *otpStore
		joinCodes map[string]struct{}
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	validator *core.Validator,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	codes := make(map[string]struct{}, len(conf.DevAPI.JoinCodes))
	for _, code := range conf.DevAPI.JoinCodes {
		code = NormalizeJoinCode(code)
		if code == "" {
			continue
		}
		if !validator.Var(code, core.JoinCodeTag) {
			// the portal could never submit it
			logger.Warn(fmt.Sprintf("ignoring malformed join code %q", code))
			continue
		}
		codes[code] = struct{}{}
	}
	return &service{
		repo:      repo,
		validator: validator,
		mailSvc:   mailSvc,
		logger:    logger,
		otps:      newOtpStore(conf.DevAPI.OtpLength, conf.DevAPI.OtpTTL, conf.DevAPI.OtpMaxAttempts),
		joinCodes: codes,
	}
}

// NormalizeJoinCode trims and upper-cases a join code; join codes are case-insensitive.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}

func (svc *service) checkUniqueness(ctx context.Context, email, phone string) error {
	if err := svc.repo.CheckContactUniqueness(ctx, email, phone); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrPhoneExists:
			field = "phone"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, na NewAccount) (Account, error) {
	na.Clean()
	if err := svc.validator.Struct(na); err != nil {
		return Account{}, err
	}
	if err := svc.checkUniqueness(ctx, na.Email, na.Phone); err != nil {
		return Account{}, err
	}

	now := NowFunc().UTC()
	acc := Account{
		Name:      na.Name,
		Email:     na.Email,
		Phone:     na.Phone,
		Role:      na.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if na.Password != "" {
		if err := acc.SetPassword(na.Password); err != nil {
			return Account{}, errors.Wrap(err, "hashing password")
		}
	}
	acc, err := svc.repo.CreateAccount(ctx, acc)
	return acc, errors.Wrap(err, "creating account")
}

func (svc *service) GetByID(ctx context.Context, id int64) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

// GetByContact finds an account by email when contact looks like one, by phone otherwise.
func (svc *service) GetByContact(ctx context.Context, contact string) (Account, error) {
	if core.IsEmail(contact) {
		return svc.repo.GetAccountByEmail(ctx, core.CleanString(contact, true /* lower */))
	}
	return svc.repo.GetAccountByPhone(ctx, core.CleanString(contact))
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "finding account by email")
	}
	if err = acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if !acc.IsActive {
		return Account{}, ErrAccountInactive
	}
	return svc.login(ctx, acc)
}

func (svc *service) login(ctx context.Context, acc Account) (Account, error) {
	now := NowFunc().UTC()
	if err := svc.repo.SetLastLogin(ctx, acc.ID, now); err != nil {
		return Account{}, errors.Wrap(err, "setting lastLogin")
	}
	acc.LastLogin = now
	return acc, nil
}

// RequestOtp issues a one-time code for the account behind identifier.
// Unknown or inactive identifiers are ignored silently so that accounts cannot be enumerated.
func (svc *service) RequestOtp(ctx context.Context, identifier string) error {
	acc, err := svc.GetByContact(ctx, identifier)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding account by contact")
	}
	if !acc.IsActive {
		return nil
	}

	code, err := svc.otps.issue(otpKey(identifier), NowFunc())
	if err != nil {
		return errors.Wrap(err, "issuing otp")
	}
	svc.deliverOtp(acc, code)
	return nil
}

func (svc *service) deliverOtp(acc Account, code string) {
	if acc.Email == "" {
		// TODO: deliver via SMS once a provider is chosen; phone-only accounts only get logged codes for now.
		svc.logger.Info("otp issued for phone-only account", map[string]interface{}{"account": acc.ID}, acc.Profile())
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      "Your sign-in code",
		TemplateName: "otp",
		TemplateData: map[string]interface{}{"Name": acc.Name, "Code": code, "TTL": svc.otps.ttl},
	})
}

func (svc *service) VerifyOtp(ctx context.Context, identifier, code string) (Account, error) {
	if err := svc.otps.verify(otpKey(identifier), code, NowFunc()); err != nil {
		return Account{}, err
	}
	acc, err := svc.GetByContact(ctx, identifier)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidOtp
		}
		return Account{}, errors.Wrap(err, "finding account by contact")
	}
	if !acc.IsActive {
		return Account{}, ErrAccountInactive
	}
	return svc.login(ctx, acc)
}

// Join enrolls a new student with a join code, or signs an existing student back in.
func (svc *service) Join(ctx context.Context, code, name, contact string) (Account, error) {
	if _, ok := svc.joinCodes[NormalizeJoinCode(code)]; !ok {
		return Account{}, ErrInvalidJoinCode
	}

	acc, err := svc.GetByContact(ctx, contact)
	switch {
	case err == nil:
		if acc.Role != RoleStudent {
			return Account{}, ErrInvalidJoinCode
		}
		if !acc.IsActive {
			return Account{}, ErrAccountInactive
		}
		return svc.login(ctx, acc)
	case errors.Cause(err) != ErrNotFound:
		return Account{}, errors.Wrap(err, "finding account by contact")
	}

	na := NewAccount{Name: name, Role: RoleStudent}
	if core.IsEmail(contact) {
		na.Email = contact
	} else {
		na.Phone = contact
	}
	if acc, err = svc.Create(ctx, na); err != nil {
		return Account{}, err
	}
	return svc.login(ctx, acc)
}

func (svc *service) ResetPassword(ctx context.Context, contact, pwd string) error {
	if !svc.validator.Var(pwd, "required,min=8") {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: "password must contain at least 8 characters"})
	}
	acc, err := svc.GetByContact(ctx, contact)
	if err != nil {
		return errors.Wrap(err, "finding account by contact")
	}
	if err = acc.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateAccount(ctx, acc)
	return errors.Wrap(err, "updating account")
}

// SeedAdmin creates the platform admin account unless an account with that email already exists.
func (svc *service) SeedAdmin(ctx context.Context, email, pwd string) (bool, error) {
	if email == "" {
		return false, nil
	}
	_, err := svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err == nil {
		return false, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return false, errors.Wrap(err, "finding admin account")
	}
	_, err = svc.Create(ctx, NewAccount{
		Name:     "Platform Admin",
		Email:    email,
		Role:     RoleAdmin,
		Password: pwd,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
