package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academy/core/course"
	"github.com/trezcool/academy/core/user"
)

type progressApi struct {
	svc      course.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := progressApi{
		svc:      deps.CourseSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	g.GET("/courses/:id/read", api.read, jwt)
	g.DELETE("/courses/:id/progress", api.reset, jwt)

	g.POST("/lessons/:id/start", api.start(course.KindLesson), jwt)
	g.POST("/lessons/:id/complete", api.complete(course.KindLesson), jwt)

	g.POST("/contents/:id/start", api.start(course.KindContent), jwt)
	g.POST("/contents/:id/complete", api.complete(course.KindContent), jwt)
	g.POST("/contents/:id/answer", api.answer, jwt)
}

// Handlers

func (api *progressApi) read(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rd, err := api.svc.Read(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reading course")
	}
	return ctx.JSON(http.StatusOK, rd)
}

func (api *progressApi) reset(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Reset(ctx.Request().Context(), ctxUsr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "resetting progress")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *progressApi) start(kind course.ItemKind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		rd, err := api.svc.Start(ctx.Request().Context(), ctxUsr, kind, ctx.Param("id"))
		if err != nil {
			return errors.Wrapf(err, "starting %s", kind)
		}
		return ctx.JSON(http.StatusOK, rd)
	}
}

func (api *progressApi) complete(kind course.ItemKind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		rd, err := api.svc.Complete(ctx.Request().Context(), ctxUsr, kind, ctx.Param("id"))
		if err != nil {
			return errors.Wrapf(err, "completing %s", kind)
		}
		return ctx.JSON(http.StatusOK, rd)
	}
}

func (api *progressApi) answer(ctx echo.Context) error {
	var data course.AnswerQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnswerQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.Answer(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data.ChoiceID)
	if err != nil {
		return errors.Wrap(err, "answering question")
	}
	return ctx.JSON(http.StatusOK, res)
}
