package services

import (
	"forms_platform/platform/auth"
	"forms_platform/platform/storage"
	"forms_platform/utils"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Platform struct {
	user       UserService
	academic   AcademicService
	form       FormService
	submission SubmissionService
	review     ReviewService

	db *gorm.DB
}

func NewPlatform(db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider) Platform {
	return Platform{
		user:     UserService{db: db, userAuth: userAuth},
		academic: AcademicService{db: db},
		form:     FormService{db: db, storage: store, userAuth: userAuth},
		submission: SubmissionService{
			db:       db,
			storage:  store,
			userAuth: userAuth,
		},
		review: ReviewService{db: db, storage: store, userAuth: userAuth},
		db:     db,
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/academic", p.academic.Routes())
	r.Mount("/forms", p.form.Routes())
	r.Mount("/f", p.submission.Routes())
	r.Mount("/review", p.review.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
