// Package rewards implements the time-gated rewards economy: user
// registration, daily and work streaks and reward minting.
package rewards

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelrewards"
	rewardsErrors "github.com/emporium-dao/emporium/internal/service/rewards/errors"
	"github.com/rs/zerolog"
)

// Claim window constants. A claim within the cooldown is rejected, a claim
// after the reset gap starts the streak over.
const (
	WorkCooldown  = time.Hour
	WorkResetGap  = 2 * time.Hour
	DailyCooldown = 20 * time.Hour
	DailyResetGap = 28 * time.Hour
)

// Daily window policies. The elapsed policy measures raw time since the last
// claim, the calendar policy allows one claim per UTC calendar day.
const (
	PolicyElapsed  = "elapsed"
	PolicyCalendar = "calendar"
)

// handleFormat is the platform identity format for user handles.
var handleFormat = regexp.MustCompile(`^[0-9]{17,18}$`)

// Minter pays out computed rewards through the token ledger.
type Minter interface {
	Mint(ctx context.Context, caller, to string, amount *big.Int) (uint64, error)
}

// ClaimResult reports a successful claim back to the user.
type ClaimResult struct {
	Reward uint64
	Streak uint64
}

// Service defines attributes of a struct available to its methods.
type Service struct {
	mu               sync.Mutex
	users            map[string]*modelrewards.User
	totalUsers       uint64
	inProgress       map[string]struct{}
	minter           Minter
	servicePrincipal string
	workBase         uint64
	dailyBase        uint64
	dailyPolicy      string
	now              func() time.Time
	log              *zerolog.Logger
}

// InitService initializes a rewards ledger. The service principal is the
// identity under which reward mints are issued and must be registered as a
// custodian of the token ledger.
func InitService(cfg *config.RewardsConfig, minter Minter, servicePrincipal string, log *zerolog.Logger) (*Service, error) {
	if minter == nil {
		return nil, &rewardsErrors.ServiceFoundNilArgument{Msg: "nil minter was passed to service initializer"}
	}
	return &Service{
		users:            make(map[string]*modelrewards.User),
		inProgress:       make(map[string]struct{}),
		minter:           minter,
		servicePrincipal: servicePrincipal,
		workBase:         cfg.WorkBase,
		dailyBase:        cfg.DailyBase,
		dailyPolicy:      cfg.DailyPolicy,
		now:              time.Now,
		log:              log,
	}, nil
}

// Register creates a fresh user record bound to the caller's principal ID.
func (s *Service) Register(handle, principal string) error {
	if !handleFormat.MatchString(handle) {
		return &rewardsErrors.InvalidHandleError{Handle: handle}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[handle]; ok {
		return &rewardsErrors.AlreadyRegisteredError{Handle: handle}
	}
	s.users[handle] = &modelrewards.User{
		Handle:    handle,
		Principal: principal,
	}
	s.totalUsers++
	s.log.Info().Msg(fmt.Sprintf("user %s registered with principal %s", handle, principal))
	return nil
}

// SetPrincipal repoints the identity binding of a user record. Only the
// current owner may do this, custodianship does not override.
func (s *Service) SetPrincipal(handle, caller, newPrincipal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[handle]
	if !ok {
		return &rewardsErrors.UnregisteredUserError{Handle: handle}
	}
	if user.Principal != caller {
		return &rewardsErrors.NotAuthorizedError{Principal: caller}
	}
	user.Principal = newPrincipal
	return nil
}

// ClaimWork performs a work claim: streak bookkeeping first, reward mint second.
func (s *Service) ClaimWork(ctx context.Context, handle string) (*ClaimResult, error) {
	return s.claim(ctx, handle, "work")
}

// ClaimDaily performs a daily claim: streak bookkeeping first, reward mint second.
func (s *Service) ClaimDaily(ctx context.Context, handle string) (*ClaimResult, error) {
	return s.claim(ctx, handle, "daily")
}

// claim runs the two phases of a reward claim. Phase one validates the window,
// advances the streak and commits the reward amount under the lock. Phase two
// mints through the token ledger with the lock released and the per-user
// marker held, so a second claim arriving during the external call is rejected
// instead of observing pre-update state. A failed mint does not roll back
// phase one: the user keeps the streak credit but receives no tokens.
func (s *Service) claim(ctx context.Context, handle, kind string) (*ClaimResult, error) {
	principal, result, err := s.advance(handle, kind)
	if err != nil {
		return nil, err
	}
	defer s.clearMarker(handle)
	_, err = s.minter.Mint(ctx, s.servicePrincipal, principal, new(big.Int).SetUint64(result.Reward))
	if err != nil {
		s.log.Error().Err(err).Msg(fmt.Sprintf("%s reward mint failed for user %s", kind, handle))
		return nil, &rewardsErrors.MintFailedError{Err: err}
	}
	return result, nil
}

// advance is phase one of a claim: no external calls, cannot be interrupted.
func (s *Service) advance(handle, kind string) (string, *ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[handle]
	if !ok {
		return "", nil, &rewardsErrors.UnregisteredUserError{Handle: handle}
	}
	if _, busy := s.inProgress[handle]; busy {
		return "", nil, &rewardsErrors.ClaimInProgressError{Handle: handle}
	}
	now := s.now()
	var streakData *modelrewards.StreakData
	var base uint64
	switch kind {
	case "work":
		streakData = &user.Work
		base = s.workBase
		if err := s.checkElapsedWindow(streakData, now, WorkCooldown, WorkResetGap, handle, kind); err != nil {
			return "", nil, err
		}
	default:
		streakData = &user.Daily
		base = s.dailyBase
		if s.dailyPolicy == PolicyCalendar {
			if err := s.checkCalendarWindow(streakData, now, handle, kind); err != nil {
				return "", nil, err
			}
		} else {
			if err := s.checkElapsedWindow(streakData, now, DailyCooldown, DailyResetGap, handle, kind); err != nil {
				return "", nil, err
			}
		}
	}
	reward := base + streakData.Streak*streakData.Streak
	streakData.Streak++
	streakData.LastTimestamp = now.UnixNano()
	user.TotalRewards += reward
	s.inProgress[handle] = struct{}{}
	return user.Principal, &ClaimResult{Reward: reward, Streak: streakData.Streak}, nil
}

// checkElapsedWindow rejects claims inside the cooldown and zeroes the streak
// after the reset gap. The reward is computed on the post-reset streak value.
func (s *Service) checkElapsedWindow(streakData *modelrewards.StreakData, now time.Time, cooldown, resetGap time.Duration, handle, kind string) error {
	elapsed := now.Sub(time.Unix(0, streakData.LastTimestamp))
	if elapsed < cooldown {
		return &rewardsErrors.AlreadyClaimedError{Handle: handle, Kind: kind}
	}
	if elapsed > resetGap {
		streakData.Streak = 0
	}
	return nil
}

// checkCalendarWindow allows one claim per UTC calendar day and keeps the
// streak only when the previous claim happened on the previous day.
func (s *Service) checkCalendarWindow(streakData *modelrewards.StreakData, now time.Time, handle, kind string) error {
	last := time.Unix(0, streakData.LastTimestamp).UTC()
	today := now.UTC().Truncate(24 * time.Hour)
	lastDay := last.Truncate(24 * time.Hour)
	if streakData.LastTimestamp != 0 && today.Equal(lastDay) {
		return &rewardsErrors.AlreadyClaimedError{Handle: handle, Kind: kind}
	}
	if !lastDay.Add(24 * time.Hour).Equal(today) {
		streakData.Streak = 0
	}
	return nil
}

// clearMarker releases the per-user in-progress marker after phase two
// finished either way.
func (s *Service) clearMarker(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, handle)
}

// GetUser returns a copy of one user record.
func (s *Service) GetUser(handle string) (*modelrewards.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[handle]
	if !ok {
		return nil, &rewardsErrors.UnregisteredUserError{Handle: handle}
	}
	userCopy := *user
	return &userCopy, nil
}

// GetUsers returns copies of all user records sorted by handle.
func (s *Service) GetUsers() []modelrewards.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]modelrewards.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Handle < users[j].Handle
	})
	return users
}

// TotalUsers returns the number of registered users.
func (s *Service) TotalUsers() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUsers
}

// SetClock replaces the time source, used by tests to step through claim windows.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Export returns a deep copy of all user records for snapshotting.
func (s *Service) Export() (map[string]modelrewards.User, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[string]modelrewards.User, len(s.users))
	for handle, user := range s.users {
		users[handle] = *user
	}
	return users, s.totalUsers
}

// Install atomically replaces all user records with restored ones.
func (s *Service) Install(users map[string]modelrewards.User, totalUsers uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*modelrewards.User, len(users))
	for handle, user := range users {
		userCopy := user
		s.users[handle] = &userCopy
	}
	s.totalUsers = totalUsers
	s.inProgress = make(map[string]struct{})
}
