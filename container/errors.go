package container

import "errors"

var (
	ErrBeanIdParamIsEmpty    = errors.New("beanID parameter is empty")
	ErrClassNameParamIsEmpty = errors.New("className parameter is empty")
	ErrBeanTypeParamIsNil    = errors.New("beanType parameter is nil")
	ErrBeanParamIsNil        = errors.New("bean parameter is nil")
	ErrBeanTypeNotSupported  = errors.New("beanType is not supported")
	ErrRegistrationClosed    = errors.New("container already built; registration is closed")
	ErrScopeNotSupported     = errors.New("scope is not supported")
	ErrSessionNotFound       = errors.New("session not found")
	ErrRequestEnded          = errors.New("request already ended")
	ErrForeignSession        = errors.New("injection session was not created by this container")
)
