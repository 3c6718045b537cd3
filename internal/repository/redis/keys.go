package redis

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "busgo:v1"

func KeyJourney(journeyID uuid.UUID) string {
	return fmt.Sprintf("%s:journey:%s", ns, journeyID)
}

func KeyJourneySeats(journeyID uuid.UUID) string {
	return fmt.Sprintf("%s:journey:%s:seats", ns, journeyID)
}

func KeyIdemInitiate(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:initiate:%d:%s", ns, userID, idemKey)
}

func KeyReclaimLock(name string) string {
	return fmt.Sprintf("%s:lock:%s", ns, name)
}

func ChannelSeatsChanged() string {
	return ns + ":seats:changed"
}
