package couples

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

// Invite creates a PENDING pairing from initiatorID to the account identified
// by recipient (email or username). Re-inviting the same recipient while the
// invite is still pending returns the existing pairing.
func (s *Service) Invite(ctx context.Context, initiatorID, recipient string) (models.Pairing, error) {
	ctx, span := logging.StartSpan(ctx, "couples.invite")
	defer span.End()

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return models.Pairing{}, ErrUnknownRecipient
	}

	target, err := s.accounts.FindByIdentifier(ctx, recipient)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return models.Pairing{}, ErrUnknownRecipient
		}
		return models.Pairing{}, fmt.Errorf("resolve recipient: %w", err)
	}

	if target.ID == initiatorID {
		return models.Pairing{}, ErrSelfInvite
	}

	current, err := s.activePairing(ctx, initiatorID)
	if err != nil {
		return models.Pairing{}, err
	}
	if current != nil {
		if current.Status == models.PairingPending && current.InitiatorID == initiatorID && current.RecipientID == target.ID {
			return *current, nil
		}
		return models.Pairing{}, ErrAlreadyPaired
	}

	other, err := s.activePairing(ctx, target.ID)
	if err != nil {
		return models.Pairing{}, err
	}
	if other != nil {
		return models.Pairing{}, ErrAlreadyPaired
	}

	pairing := models.Pairing{
		ID:          s.newID(),
		InitiatorID: initiatorID,
		RecipientID: target.ID,
		Status:      models.PairingPending,
		CreatedAt:   s.now(),
	}
	if err := s.pairings.CreatePairing(ctx, pairing); err != nil {
		if errors.Is(err, ErrActivePairingExists) {
			return models.Pairing{}, ErrAlreadyPaired
		}
		return models.Pairing{}, fmt.Errorf("create pairing: %w", err)
	}

	logging.FromContext(ctx).Info("pairing invite created", "pairingId", pairing.ID, "initiatorId", initiatorID, "recipientId", target.ID)

	s.emit(ctx, models.Event{
		Type:       models.EventInviteReceived,
		PairingID:  pairing.ID,
		ActorID:    initiatorID,
		Recipients: []string{target.ID},
		OccurredAt: pairing.CreatedAt,
	})

	return pairing, nil
}

// Accept moves a PENDING pairing to ACCEPTED. Only the recipient may accept.
func (s *Service) Accept(ctx context.Context, pairingID, actorID string) (models.Pairing, error) {
	ctx, span := logging.StartSpan(ctx, "couples.accept")
	defer span.End()

	pairing, err := s.respond(ctx, pairingID, actorID, models.RoleRecipient, models.PairingAccepted)
	if err != nil {
		return models.Pairing{}, err
	}

	s.emit(ctx, models.Event{
		Type:       models.EventInviteAccepted,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.InitiatorID},
	})
	return pairing, nil
}

// Reject moves a PENDING pairing to BROKEN. Only the recipient may reject.
func (s *Service) Reject(ctx context.Context, pairingID, actorID string) error {
	ctx, span := logging.StartSpan(ctx, "couples.reject")
	defer span.End()

	pairing, err := s.respond(ctx, pairingID, actorID, models.RoleRecipient, models.PairingBroken)
	if err != nil {
		return err
	}

	s.emit(ctx, models.Event{
		Type:       models.EventInviteRejected,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.InitiatorID},
	})
	return nil
}

// Cancel withdraws a PENDING invite. Only the initiator may cancel.
func (s *Service) Cancel(ctx context.Context, pairingID, actorID string) error {
	ctx, span := logging.StartSpan(ctx, "couples.cancel")
	defer span.End()

	pairing, err := s.respond(ctx, pairingID, actorID, models.RoleInitiator, models.PairingBroken)
	if err != nil {
		return err
	}

	s.emit(ctx, models.Event{
		Type:       models.EventInviteCancelled,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.RecipientID},
	})
	return nil
}

// Break ends an ACCEPTED pairing on behalf of either member. The shared
// collection is deleted with it.
func (s *Service) Break(ctx context.Context, pairingID, actorID string) error {
	ctx, span := logging.StartSpan(ctx, "couples.break")
	defer span.End()

	pairing, err := s.loadPairing(ctx, pairingID)
	if err != nil {
		return err
	}
	if pairing.RoleOf(actorID) == models.RoleNone {
		return ErrNotMember
	}
	if pairing.Status != models.PairingAccepted {
		return ErrInvalidState
	}

	broken, removed, err := s.pairings.BreakPairing(ctx, pairing.ID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrStaleTransition):
			return ErrInvalidState
		case errors.Is(err, ErrPairingNotFound):
			return ErrPairingNotFound
		}
		return fmt.Errorf("break pairing: %w", err)
	}

	logging.FromContext(ctx).Info("pairing broken", "pairingId", pairing.ID, "actorId", actorID, "entriesRemoved", len(removed))

	s.archive(ctx, broken, removed)
	s.emit(ctx, models.Event{
		Type:       models.EventPairingBroken,
		PairingID:  broken.ID,
		ActorID:    actorID,
		Recipients: []string{broken.PartnerOf(actorID)},
	})
	return nil
}

// Partner returns the other member of the account's ACCEPTED pairing, or nil
// when the account is not paired.
func (s *Service) Partner(ctx context.Context, accountID string) (*models.Account, error) {
	current, err := s.activePairing(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Status != models.PairingAccepted {
		return nil, nil
	}

	partner, err := s.accounts.FindByID(ctx, current.PartnerOf(accountID))
	if err != nil {
		return nil, fmt.Errorf("load partner: %w", err)
	}
	return &partner, nil
}

// Current returns the account's PENDING or ACCEPTED pairing.
func (s *Service) Current(ctx context.Context, accountID string) (models.Pairing, error) {
	current, err := s.activePairing(ctx, accountID)
	if err != nil {
		return models.Pairing{}, err
	}
	if current == nil {
		return models.Pairing{}, ErrPairingNotFound
	}
	return *current, nil
}

// IncomingInvites lists the PENDING pairings addressed to accountID.
func (s *Service) IncomingInvites(ctx context.Context, accountID string) ([]models.Pairing, error) {
	invites, err := s.pairings.ListIncoming(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list incoming invites: %w", err)
	}
	if invites == nil {
		invites = []models.Pairing{}
	}
	return invites, nil
}

func (s *Service) respond(ctx context.Context, pairingID, actorID string, actor models.Role, to models.PairingStatus) (models.Pairing, error) {
	pairing, err := s.loadPairing(ctx, pairingID)
	if err != nil {
		return models.Pairing{}, err
	}

	if pairing.RoleOf(actorID) != actor {
		if actor == models.RoleInitiator {
			return models.Pairing{}, ErrNotInitiator
		}
		return models.Pairing{}, ErrNotRecipient
	}
	if pairing.Status != models.PairingPending {
		return models.Pairing{}, ErrInvalidState
	}

	updated, err := s.pairings.TransitionPairing(ctx, pairing.ID, models.PairingPending, to, s.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrStaleTransition):
			return models.Pairing{}, ErrInvalidState
		case errors.Is(err, ErrPairingNotFound):
			return models.Pairing{}, ErrPairingNotFound
		}
		return models.Pairing{}, fmt.Errorf("transition pairing: %w", err)
	}

	logging.FromContext(ctx).Info("pairing transitioned", "pairingId", pairing.ID, "actorId", actorID, "status", string(to))
	return updated, nil
}

func (s *Service) loadPairing(ctx context.Context, pairingID string) (models.Pairing, error) {
	pairing, err := s.pairings.GetPairing(ctx, pairingID)
	if err != nil {
		if errors.Is(err, ErrPairingNotFound) {
			return models.Pairing{}, ErrPairingNotFound
		}
		return models.Pairing{}, fmt.Errorf("load pairing: %w", err)
	}
	return pairing, nil
}

func (s *Service) activePairing(ctx context.Context, accountID string) (*models.Pairing, error) {
	pairing, err := s.pairings.ActivePairingFor(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrPairingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load active pairing: %w", err)
	}
	return &pairing, nil
}
