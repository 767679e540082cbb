package versions

import (
	"log"

	"gorm.io/gorm"
)

// Migration_1_submission_policies introduces the per-form submission policy
// flags and the post-submission answer edit flag on fields. Forms that existed
// before this migration keep the old behavior: unrestricted submissions and no
// answer edits.
func Migration_1_submission_policies(txn *gorm.DB) error {
	log.Println("adding submission policy columns")

	type Form struct {
		AllowUpdate      bool `gorm:"not null;default:false"`
		SingleSubmission bool `gorm:"not null;default:false"`
	}

	if err := txn.Migrator().AddColumn(&Form{}, "AllowUpdate"); err != nil {
		return err
	}
	if err := txn.Migrator().AddColumn(&Form{}, "SingleSubmission"); err != nil {
		return err
	}

	type FormField struct {
		AdminOnly bool `gorm:"not null;default:false"`
	}

	if err := txn.Migrator().AddColumn(&FormField{}, "AdminOnly"); err != nil {
		return err
	}

	log.Println("submission policy columns added")

	return nil
}
